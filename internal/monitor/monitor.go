// Package monitor detects tool-call doom loops: a model issuing the same
// call with the same arguments over and over. The agent loop consults it
// before every dispatch.
package monitor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/goosehq/goose/pkg/types"
)

// DefaultMaxRepetitions is used when the monitor is enabled without an
// explicit cap.
const DefaultMaxRepetitions = 3

// Monitor tracks consecutive identical tool calls and rejects the call
// that would exceed the configured cap.
type Monitor struct {
	mu sync.Mutex

	maxRepetitions  int
	lastFingerprint string
	consecutive     int
	callCounts      map[string]int
}

// New creates a monitor allowing up to maxRepetitions consecutive
// identical calls.
func New(maxRepetitions int) *Monitor {
	if maxRepetitions <= 0 {
		maxRepetitions = DefaultMaxRepetitions
	}
	return &Monitor{
		maxRepetitions: maxRepetitions,
		callCounts:     make(map[string]int),
	}
}

// Check records a call and reports whether it may run. The (M+1)-th
// consecutive identical call is rejected; any different call resets the
// streak.
func (m *Monitor) Check(call types.ToolCall) bool {
	fingerprint := fingerprintCall(call)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCounts[call.Name]++

	if fingerprint == m.lastFingerprint {
		m.consecutive++
	} else {
		m.lastFingerprint = fingerprint
		m.consecutive = 1
	}

	return m.consecutive <= m.maxRepetitions
}

// Reset clears the repetition state and per-name counters.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastFingerprint = ""
	m.consecutive = 0
	m.callCounts = make(map[string]int)
}

// Stats returns a copy of the per-name call counts.
func (m *Monitor) Stats() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int, len(m.callCounts))
	for name, count := range m.callCounts {
		out[name] = count
	}
	return out
}

// fingerprintCall hashes the name plus canonicalized arguments so that
// formatting differences in the raw JSON do not defeat detection.
func fingerprintCall(call types.ToolCall) string {
	var args any
	if len(call.Arguments) > 0 {
		// Unmarshal/marshal canonicalizes key order.
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			args = string(call.Arguments)
		}
	}
	data, _ := json.Marshal(map[string]any{
		"tool":  call.Name,
		"input": args,
	})
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
