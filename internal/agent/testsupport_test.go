package agent

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goosehq/goose/internal/config"
	"github.com/goosehq/goose/internal/extension"
	"github.com/goosehq/goose/internal/permission"
	"github.com/goosehq/goose/pkg/types"
)

// testingT is the slice of testing.T the harness needs; ginkgo's
// GinkgoT() satisfies it too.
type testingT interface {
	Helper()
	Setenv(key, value string)
	TempDir() string
	Cleanup(func())
	Fatal(args ...any)
	Errorf(format string, args ...any)
	FailNow()
}

func newTestPermissionStore(t testingT) *permission.Store {
	t.Helper()
	return permission.NewStore(filepath.Join(t.TempDir(), "permissions.yaml"))
}

// scriptedProvider replays a fixed list of replies in order. Requests
// from the session describer are answered out of band so they do not
// consume the script.
type scriptedProvider struct {
	mu      sync.Mutex
	name    string
	replies []scriptedReply
	calls   int
}

type scriptedReply struct {
	message *types.Message
	usage   types.Usage
	err     error
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(ctx context.Context, system string, messages []types.Message, tools []types.Tool) (*types.Message, types.ProviderUsage, error) {
	if strings.Contains(system, "session describer") {
		msg := assistantText("test session")
		return &msg, types.ProviderUsage{Model: p.name}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls >= len(p.replies) {
		msg := assistantText("")
		return &msg, types.ProviderUsage{Model: p.name}, nil
	}
	reply := p.replies[p.calls]
	p.calls++
	if reply.err != nil {
		return nil, types.ProviderUsage{Model: p.name}, reply.err
	}
	return reply.message, types.ProviderUsage{Model: p.name, Usage: reply.usage}, nil
}

func assistantText(text string) types.Message {
	return types.Message{
		Role:    types.RoleAssistant,
		Created: time.Now(),
		Content: []types.Content{types.NewTextContent(text)},
	}
}

func userText(text string) types.Message {
	return types.Message{
		Role:    types.RoleUser,
		Created: time.Now(),
		Content: []types.Content{types.NewTextContent(text)},
	}
}

func assistantToolCall(id, tool, args string) types.Message {
	return types.Message{
		Role:    types.RoleAssistant,
		Created: time.Now(),
		Content: []types.Content{types.NewToolRequestContent(id, types.ToolCall{
			Name:      tool,
			Arguments: []byte(args),
		})},
	}
}

// testHarness wires an agent with a scripted provider, a developer
// extension, and isolated config.
type testHarness struct {
	agent    *Agent
	provider *scriptedProvider
	store    *config.Store
}

func newHarness(t testingT, replies []scriptedReply, opts ...Option) *testHarness {
	t.Helper()
	t.Setenv(config.DisableKeyringEnv, "1")
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	store := config.NewStore(t.TempDir())
	provider := &scriptedProvider{name: "mock-model", replies: replies}

	manager := extension.NewManager(store)
	require.NoError(t, manager.AddExtension(context.Background(), types.ExtensionConfig{
		Kind: types.ExtensionBuiltin,
		Name: "developer",
	}))
	t.Cleanup(manager.Close)

	opts = append(opts, WithPermissionStore(newTestPermissionStore(t)))
	return &testHarness{
		agent:    New(provider, manager, store, opts...),
		provider: provider,
		store:    store,
	}
}

// collect drains a Reply event stream.
func collect(t testingT, events <-chan AgentEvent) []AgentEvent {
	t.Helper()
	var out []AgentEvent
	timeout := time.After(30 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event stream did not finish")
		}
	}
}

// messagesOf filters the message events.
func messagesOf(events []AgentEvent) []types.Message {
	var out []types.Message
	for _, ev := range events {
		if ev.Kind == EventMessage {
			out = append(out, *ev.Message)
		}
	}
	return out
}
