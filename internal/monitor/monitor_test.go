package monitor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/goosehq/goose/pkg/types"
)

func call(name, args string) types.ToolCall {
	return types.ToolCall{Name: name, Arguments: json.RawMessage(args)}
}

func TestMonitor_RejectsAfterCap(t *testing.T) {
	m := New(2)

	same := call("developer__shell", `{"command":"echo hi"}`)
	assert.True(t, m.Check(same))
	assert.True(t, m.Check(same))
	assert.False(t, m.Check(same), "third consecutive identical call must be rejected")
}

func TestMonitor_DifferentCallResetsStreak(t *testing.T) {
	m := New(2)

	same := call("developer__shell", `{"command":"echo hi"}`)
	other := call("developer__shell", `{"command":"echo bye"}`)

	assert.True(t, m.Check(same))
	assert.True(t, m.Check(same))
	assert.True(t, m.Check(other), "a different fingerprint is accepted immediately")
	assert.True(t, m.Check(same), "the streak restarted")
	assert.True(t, m.Check(same))
	assert.False(t, m.Check(same))
}

func TestMonitor_FingerprintIgnoresKeyOrder(t *testing.T) {
	m := New(1)

	assert.True(t, m.Check(call("t", `{"a":1,"b":2}`)))
	assert.False(t, m.Check(call("t", `{"b":2,"a":1}`)), "key order must not defeat detection")
}

func TestMonitor_Reset(t *testing.T) {
	m := New(1)

	same := call("t", `{}`)
	assert.True(t, m.Check(same))
	m.Reset()
	assert.True(t, m.Check(same))
	assert.Equal(t, 1, m.Stats()["t"])
}

func TestMonitor_Stats(t *testing.T) {
	m := New(5)

	m.Check(call("a", `{}`))
	m.Check(call("a", `{}`))
	m.Check(call("b", `{}`))

	stats := m.Stats()
	assert.Equal(t, 2, stats["a"])
	assert.Equal(t, 1, stats["b"])
}
