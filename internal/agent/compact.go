package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goosehq/goose/pkg/types"
)

// Context-recovery helpers. The loop never invokes these itself: after a
// ContextLengthExceeded event the caller decides between clearing,
// truncating, or summarizing and re-enters Reply with the result.

// summarizeSystemPrompt instructs the model during context compaction.
const summarizeSystemPrompt = "You are a conversation summarizer. Create a concise summary of the conversation that preserves key context for continuing the discussion: decisions made, files touched, open problems, and the current task state."

// minMessagesToKeep is how many recent messages truncation and
// summarization preserve verbatim.
const minMessagesToKeep = 4

// ClearContext drops the whole history, keeping only the most recent
// user message so the conversation can restart.
func (a *Agent) ClearContext(messages []types.Message) []types.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleUser && !hasToolResponses(messages[i]) {
			return []types.Message{messages[i]}
		}
	}
	return nil
}

// TruncateContext drops the oldest messages, keeping the most recent
// ones on a tool-request/response boundary so invariant A survives.
func (a *Agent) TruncateContext(messages []types.Message) []types.Message {
	if len(messages) <= minMessagesToKeep {
		return messages
	}

	start := len(messages) - minMessagesToKeep
	// Never start on a user message that answers a dropped request.
	for start < len(messages) && hasToolResponses(messages[start]) {
		start++
	}
	if start >= len(messages) {
		return a.ClearContext(messages)
	}
	return append([]types.Message(nil), messages[start:]...)
}

// SummarizeContext asks the provider for a summary of the older
// messages and returns it as a fresh history: one user message carrying
// the summary, then the most recent messages verbatim.
func (a *Agent) SummarizeContext(ctx context.Context, messages []types.Message) ([]types.Message, error) {
	if len(messages) <= minMessagesToKeep {
		return messages, nil
	}

	cut := len(messages) - minMessagesToKeep
	toSummarize := messages[:cut]
	keep := a.TruncateContext(messages)

	prompt := types.Message{
		Role:    types.RoleUser,
		Created: time.Now(),
		Content: []types.Content{types.NewTextContent(
			"Summarize this conversation so it can continue with limited context:\n\n" + renderTranscript(toSummarize),
		)},
	}

	reply, _, err := a.provider.Complete(ctx, summarizeSystemPrompt, []types.Message{prompt}, nil)
	if err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}

	var summary strings.Builder
	for _, c := range reply.Content {
		if c.Kind == types.ContentText && c.Text != nil {
			summary.WriteString(c.Text.Text)
		}
	}

	out := []types.Message{{
		Role:    types.RoleUser,
		Created: time.Now(),
		Content: []types.Content{types.NewTextContent(
			"Summary of the conversation so far:\n\n" + strings.TrimSpace(summary.String()),
		)},
	}}
	return append(out, keep...), nil
}

// renderTranscript flattens messages into plain text for summarization.
func renderTranscript(messages []types.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&sb, "[%s]\n", msg.Role)
		for _, c := range msg.Content {
			switch c.Kind {
			case types.ContentText:
				sb.WriteString(c.Text.Text + "\n")
			case types.ContentToolRequest:
				if c.ToolRequest.Call != nil {
					fmt.Fprintf(&sb, "(called %s)\n", c.ToolRequest.Call.Name)
				}
			case types.ContentToolResponse:
				if c.ToolResponse.Error != nil {
					fmt.Fprintf(&sb, "(tool error: %s)\n", c.ToolResponse.Error.Message)
				} else {
					sb.WriteString("(tool result omitted)\n")
				}
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func hasToolResponses(msg types.Message) bool {
	for _, c := range msg.Content {
		if c.Kind == types.ContentToolResponse {
			return true
		}
	}
	return false
}
