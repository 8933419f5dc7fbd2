package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosehq/goose/internal/sessionlog"
	"github.com/goosehq/goose/pkg/types"
)

// assertInvariantA checks tool request/response pairing across the
// message list.
func assertInvariantA(t *testing.T, messages []types.Message) {
	t.Helper()
	seen := make(map[string]bool)
	for i, msg := range messages {
		for _, id := range msg.ToolRequestIDs() {
			require.False(t, seen[id], "duplicate tool request id %s", id)
			seen[id] = true

			if i+1 < len(messages) {
				next := messages[i+1]
				assert.Equal(t, types.RoleUser, next.Role, "tool responses live in user messages")
				assert.Contains(t, next.ToolResponseIDs(), id, "request %s unanswered", id)
			}
		}
	}
}

func TestReply_MaxTurnsCap(t *testing.T) {
	t.Setenv("GOOSE_MODE", "auto")
	// The model keeps calling tools forever; distinct args dodge the
	// repetition monitor.
	replies := []scriptedReply{
		assistantToolReply("t1", `{"command":"echo 1"}`),
		assistantToolReply("t2", `{"command":"echo 2"}`),
		assistantToolReply("t3", `{"command":"echo 3"}`),
		assistantToolReply("t4", `{"command":"echo 4"}`),
	}
	h := newHarness(t, replies)

	events, err := h.agent.Reply(context.Background(), []types.Message{userText("loop forever")}, &SessionConfig{MaxTurns: 2})
	require.NoError(t, err)
	messages := messagesOf(collect(t, events))

	// Two tool turns, then the cap message.
	last := messages[len(messages)-1]
	assert.Equal(t, types.RoleAssistant, last.Role)
	assert.Contains(t, last.Content[0].Text.Text, "maximum number of turns")
	assert.LessOrEqual(t, h.provider.calls, 2, "completions bounded by max_turns")
}

func assistantToolReply(id, args string) scriptedReply {
	msg := assistantToolCall(id, "developer__shell", args)
	return scriptedReply{message: &msg, usage: types.Usage{TotalTokens: 1}}
}

func TestReply_ChatModeSkipsTools(t *testing.T) {
	msg := assistantToolCall("t1", "developer__shell", `{"command":"echo hi"}`)
	done := assistantText("ok")
	h := newHarness(t, []scriptedReply{
		{message: &msg, usage: types.Usage{TotalTokens: 1}},
		{message: &done, usage: types.Usage{TotalTokens: 1}},
	})

	events, err := h.agent.Reply(context.Background(), []types.Message{userText("run something")}, &SessionConfig{
		ExecutionMode: types.ExecutionBackground, // background resolves to chat mode
	})
	require.NoError(t, err)
	messages := messagesOf(collect(t, events))

	var response *types.ToolResponseContent
	for _, m := range messages {
		for _, c := range m.Content {
			if c.Kind == types.ContentToolResponse {
				response = c.ToolResponse
			}
		}
	}
	require.NotNil(t, response)
	assert.Equal(t, "t1", response.ID)
	assert.Contains(t, response.Content[0].Text.Text, "chat mode")
}

func TestReply_FinalOutputNudgeAndTermination(t *testing.T) {
	t.Setenv("GOOSE_MODE", "auto")

	plain := assistantText("I think I'm done")
	finalCall := assistantToolCall("f1", FinalOutputToolName, `{"result":"all good"}`)
	h := newHarness(t, []scriptedReply{
		{message: &plain, usage: types.Usage{TotalTokens: 1}},
		{message: &finalCall, usage: types.Usage{TotalTokens: 1}},
	}, WithRecipe(&types.Recipe{
		Title: "structured",
		Response: &types.RecipeResponse{
			JSONSchema: map[string]any{"type": "object", "properties": map[string]any{"result": map[string]any{"type": "string"}}},
		},
	}))

	events, err := h.agent.Reply(context.Background(), []types.Message{userText("do the task")}, nil)
	require.NoError(t, err)
	messages := messagesOf(collect(t, events))

	// The first text-only turn triggers the continuation nudge.
	var sawNudge bool
	for _, m := range messages {
		if m.Role == types.RoleUser && len(m.Content) > 0 && m.Content[0].Text != nil &&
			m.Content[0].Text.Text == finalOutputContinuationText {
			sawNudge = true
		}
	}
	assert.True(t, sawNudge, "expected the final-output continuation nudge")

	// The stored value terminates the loop as the last assistant message.
	last := messages[len(messages)-1]
	assert.Equal(t, types.RoleAssistant, last.Role)
	assert.JSONEq(t, `{"result":"all good"}`, last.Content[0].Text.Text)
}

func TestReply_SessionPersistence(t *testing.T) {
	t.Setenv("GOOSE_MODE", "auto")
	hello := assistantText("hello")
	h := newHarness(t, []scriptedReply{{message: &hello, usage: types.Usage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5}}})

	events, err := h.agent.Reply(context.Background(), []types.Message{userText("say hi")}, &SessionConfig{
		ID:         "20250101_000001",
		WorkingDir: t.TempDir(),
	})
	require.NoError(t, err)
	collect(t, events)

	path, err := sessionlog.Resolve(types.NameIdentifier("20250101_000001"))
	require.NoError(t, err)

	meta, err := sessionlog.ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.MessageCount)
	require.NotNil(t, meta.TotalTokens)
	assert.Equal(t, 5, *meta.TotalTokens)
	assert.Equal(t, 5, meta.AccumulatedTotalTokens)
	assert.Equal(t, "test session", meta.Description)

	persisted, err := sessionlog.ReadMessages(path)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	assert.Equal(t, types.RoleUser, persisted[0].Role)
	assert.Equal(t, types.RoleAssistant, persisted[1].Role)
}

func TestReply_CancellationStopsLoop(t *testing.T) {
	t.Setenv("GOOSE_MODE", "auto")
	slow := assistantToolCall("t1", "developer__shell", `{"command":"sleep 30"}`)
	h := newHarness(t, []scriptedReply{{message: &slow, usage: types.Usage{TotalTokens: 1}}})

	ctx, cancel := context.WithCancel(context.Background())
	events, err := h.agent.Reply(ctx, []types.Message{userText("sleep")}, nil)
	require.NoError(t, err)

	go func() {
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	collect(t, events)
	assert.Less(t, time.Since(start), 15*time.Second, "cancellation must interrupt the running tool")
}

func TestReply_InvariantA(t *testing.T) {
	t.Setenv("GOOSE_MODE", "auto")
	call := assistantToolCall("t1", "developer__shell", `{"command":"echo hi"}`)
	done := assistantText("Done")
	h := newHarness(t, []scriptedReply{
		{message: &call, usage: types.Usage{TotalTokens: 1}},
		{message: &done, usage: types.Usage{TotalTokens: 1}},
	})

	events, err := h.agent.Reply(context.Background(), []types.Message{userText("run it")}, nil)
	require.NoError(t, err)
	messages := messagesOf(collect(t, events))

	full := append([]types.Message{userText("run it")}, messages...)
	assertInvariantA(t, full)
}

func TestReply_UnknownToolBecomesErrorResponse(t *testing.T) {
	t.Setenv("GOOSE_MODE", "auto")
	call := assistantToolCall("t1", "ghost__tool", `{}`)
	done := assistantText("ok")
	h := newHarness(t, []scriptedReply{
		{message: &call, usage: types.Usage{TotalTokens: 1}},
		{message: &done, usage: types.Usage{TotalTokens: 1}},
	})

	events, err := h.agent.Reply(context.Background(), []types.Message{userText("call a ghost")}, nil)
	require.NoError(t, err)
	messages := messagesOf(collect(t, events))

	var toolErr *types.ToolError
	for _, m := range messages {
		for _, c := range m.Content {
			if c.Kind == types.ContentToolResponse && c.ToolResponse.Error != nil {
				toolErr = c.ToolResponse.Error
			}
		}
	}
	require.NotNil(t, toolErr, "a missing extension packages into the response")
	assert.Equal(t, types.ToolErrNotFound, toolErr.Kind)
}

func TestContextHelpers(t *testing.T) {
	h := newHarness(t, nil)

	messages := []types.Message{
		userText("first"),
		assistantText("one"),
		userText("second"),
		assistantText("two"),
		userText("third"),
		assistantText("three"),
	}

	cleared := h.agent.ClearContext(messages)
	require.Len(t, cleared, 1)
	assert.Equal(t, "third", cleared[0].Content[0].Text.Text)

	truncated := h.agent.TruncateContext(messages)
	assert.Len(t, truncated, minMessagesToKeep)
	assertInvariantA(t, truncated)
}
