package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosehq/goose/pkg/types"
)

func TestToEinoMessages_RolesAndTools(t *testing.T) {
	messages := []types.Message{
		{
			Role:    types.RoleUser,
			Content: []types.Content{types.NewTextContent("run ls")},
		},
		{
			Role: types.RoleAssistant,
			Content: []types.Content{
				types.NewTextContent("running it"),
				types.NewToolRequestContent("t1", types.ToolCall{
					Name:      "developer__shell",
					Arguments: json.RawMessage(`{"command":"ls"}`),
				}),
			},
		},
		{
			Role: types.RoleUser,
			Content: []types.Content{
				types.NewToolResponseContent("t1", []types.Content{types.NewTextContent("a.txt\n")}),
			},
		},
	}

	out := toEinoMessages("be helpful", messages)
	require.Len(t, out, 4)

	assert.Equal(t, schema.System, out[0].Role)
	assert.Equal(t, "be helpful", out[0].Content)

	assert.Equal(t, schema.User, out[1].Role)

	assert.Equal(t, schema.Assistant, out[2].Role)
	require.Len(t, out[2].ToolCalls, 1)
	assert.Equal(t, "developer__shell", out[2].ToolCalls[0].Function.Name)
	assert.Equal(t, "t1", out[2].ToolCalls[0].ID)

	assert.Equal(t, schema.Tool, out[3].Role)
	assert.Equal(t, "t1", out[3].ToolCallID)
	assert.Equal(t, "a.txt\n", out[3].Content)
}

func TestToEinoMessages_InternalContentNeverSent(t *testing.T) {
	messages := []types.Message{
		{
			Role: types.RoleAssistant,
			Content: []types.Content{
				types.NewToolConfirmationContent("c1", "developer__shell", nil, "allow?"),
				types.NewContextLengthExceededContent("overflow"),
			},
		},
	}

	out := toEinoMessages("sys", messages)
	require.Len(t, out, 1, "only the system message survives")
}

func TestToEinoMessages_ToolErrorBecomesErrorText(t *testing.T) {
	messages := []types.Message{
		{
			Role: types.RoleUser,
			Content: []types.Content{
				types.NewToolResponseError("t1", &types.ToolError{
					Kind:    types.ToolErrExecutionError,
					Message: "command timed out",
				}),
			},
		},
	}

	out := toEinoMessages("sys", messages)
	require.Len(t, out, 2)
	assert.Equal(t, "Error: command timed out", out[1].Content)
}

func TestFromEinoMessage(t *testing.T) {
	msg := fromEinoMessage(&schema.Message{
		Role:             schema.Assistant,
		Content:          "done",
		ReasoningContent: "thinking about it",
		ToolCalls: []schema.ToolCall{
			{ID: "t1", Function: schema.FunctionCall{Name: "x", Arguments: `{"a":1}`}},
			{ID: "t2", Function: schema.FunctionCall{Name: "y", Arguments: `{"broken`}},
		},
	})

	require.Len(t, msg.Content, 4)
	assert.Equal(t, types.ContentThinking, msg.Content[0].Kind)
	assert.Equal(t, "done", msg.Content[1].Text.Text)
	assert.Equal(t, "x", msg.Content[2].ToolRequest.Call.Name)

	// Unparseable arguments surface as a tool-request error, not a crash.
	require.NotNil(t, msg.Content[3].ToolRequest.Error)
	assert.Equal(t, types.ToolErrInvalidParameters, msg.Content[3].ToolRequest.Error.Kind)
}

func TestCollator_DeltaFragments(t *testing.T) {
	c := newCollator()
	idx := 0

	c.add(&schema.Message{Content: "Hel"})
	c.add(&schema.Message{Content: "lo"})
	c.add(&schema.Message{ToolCalls: []schema.ToolCall{
		{ID: "t1", Index: &idx, Function: schema.FunctionCall{Name: "developer__shell", Arguments: `{"comm`}},
	}})
	c.add(&schema.Message{ToolCalls: []schema.ToolCall{
		{Index: &idx, Function: schema.FunctionCall{Arguments: `and":"ls"}`}},
	}})
	c.add(&schema.Message{ResponseMeta: &schema.ResponseMeta{
		Usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 4},
	}})

	msg, usage := c.finish("claude-sonnet-4")

	require.Len(t, msg.Content, 2)
	assert.Equal(t, "Hello", msg.Content[0].Text.Text)
	req := msg.Content[1].ToolRequest
	require.NotNil(t, req)
	assert.Equal(t, "t1", req.ID)
	assert.JSONEq(t, `{"command":"ls"}`, string(req.Call.Arguments))

	assert.Equal(t, "claude-sonnet-4", usage.Model)
	assert.Equal(t, 14, usage.Usage.TotalTokens)
}

func TestWrapError_Classification(t *testing.T) {
	cases := []struct {
		msg  string
		kind ErrorKind
	}{
		{"prompt is too long: 210000 tokens > 200000 maximum", ErrContextLengthExceeded},
		{"request exceeded context length", ErrContextLengthExceeded},
		{"429 Too Many Requests", ErrRateLimited},
		{"401 invalid x-api-key", ErrAuth},
		{"400 invalid request: unknown field", ErrUsage},
		{"dial tcp: connection refused", ErrRequestFailed},
		{"something odd", ErrOther},
	}

	for _, tc := range cases {
		err := wrapError("m", errors.New(tc.msg))
		var pe *Error
		require.ErrorAs(t, err, &pe, tc.msg)
		assert.Equal(t, tc.kind, pe.Kind, tc.msg)
	}
}

func TestWrapError_PassThrough(t *testing.T) {
	orig := &Error{Kind: ErrContextLengthExceeded, Model: "m", Err: errors.New("x")}
	assert.Same(t, orig, wrapError("m", orig).(*Error))
	assert.True(t, IsContextLengthExceeded(orig))
	assert.False(t, IsRetryable(orig))
	assert.True(t, IsRetryable(&Error{Kind: ErrRateLimited}))
}

func TestFallbackStream(t *testing.T) {
	mock := &mockProvider{name: "mock", replies: []mockReply{textReply("hi", 5)}}

	s, err := FallbackStream(context.Background(), mock, "sys", nil, nil)
	require.NoError(t, err)

	item, err := s.Recv()
	require.NoError(t, err)
	require.NotNil(t, item.Message)
	assert.Equal(t, "hi", item.Message.Content[0].Text.Text)
	require.NotNil(t, item.Usage)
	assert.Equal(t, 5, item.Usage.Usage.TotalTokens)

	_, err = s.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestFallbackStream_Error(t *testing.T) {
	boom := &Error{Kind: ErrRequestFailed, Err: errors.New("boom")}
	mock := &mockProvider{name: "mock", replies: []mockReply{{err: boom}}}

	s, err := FallbackStream(context.Background(), mock, "sys", nil, nil)
	require.NoError(t, err)

	_, err = s.Recv()
	assert.ErrorIs(t, err, boom)
}

func TestLeadWorker_HandoffAndUsageModel(t *testing.T) {
	lead := &mockProvider{name: "lead-model", replies: []mockReply{textReply("l", 1)}}
	worker := &mockProvider{name: "worker-model", replies: []mockReply{textReply("w", 1)}}

	p := NewLeadWorker(lead, worker)
	p.leadTurns = 2

	for i := 0; i < 2; i++ {
		_, usage, err := p.Complete(context.Background(), "s", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "lead-model", usage.Model)
	}

	_, usage, err := p.Complete(context.Background(), "s", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "worker-model", usage.Model)
	assert.Equal(t, 2, lead.calls)
	assert.Equal(t, 1, worker.calls)
}

func TestLeadWorker_FallbackAfterWorkerFailures(t *testing.T) {
	lead := &mockProvider{name: "lead-model", replies: []mockReply{textReply("l", 1)}}
	worker := &mockProvider{name: "worker-model", replies: []mockReply{
		{err: &Error{Kind: ErrRequestFailed, Err: errors.New("down")}},
	}}

	p := NewLeadWorker(lead, worker)
	p.leadTurns = 0
	p.failureThreshold = 2

	for i := 0; i < 2; i++ {
		_, _, err := p.Complete(context.Background(), "s", nil, nil)
		require.Error(t, err)
	}

	// The pair recovers on the lead for the next turn.
	_, usage, err := p.Complete(context.Background(), "s", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "lead-model", usage.Model)
}

func TestStream_RecvAfterEOF(t *testing.T) {
	items := make(chan StreamItem)
	errCh := make(chan error)
	close(items)
	close(errCh)

	s := NewStream(items, errCh)
	_, err := s.Recv()
	assert.Equal(t, io.EOF, err)
	_, err = s.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestUsageFromMeta_TotalFallback(t *testing.T) {
	usage := usageFromMeta("m", &schema.ResponseMeta{
		Usage: &schema.TokenUsage{PromptTokens: 3, CompletionTokens: 4},
	})
	assert.Equal(t, 7, usage.Usage.TotalTokens)
}
