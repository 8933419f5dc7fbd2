// Package extension manages the tool-provider clients an agent can
// dispatch to: stdio subprocesses speaking JSON-RPC, SSE endpoints,
// in-process built-ins, and frontend-delegated tool lists. Tool names
// are prefixed "extension__tool" in the catalog; dispatch strips the
// prefix and routes to the owning client.
package extension

import (
	"encoding/json"
	"fmt"

	"github.com/goosehq/goose/pkg/types"
)

// JSONRPCMessage is one frame of the extension wire protocol. Requests
// carry ID+Method, responses ID+Result/Error, notifications Method only.
type JSONRPCMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError is the error member of a response frame.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// IsNotification reports whether the frame is a notification.
func (m *JSONRPCMessage) IsNotification() bool {
	return m.ID == nil && m.Method != ""
}

// Notification methods the agent layer recognizes and re-yields as
// events.
const (
	NotificationMessageMethod  = "notifications/message"
	NotificationProgressMethod = "notifications/progress"
)

// MessageNotification is the payload of notifications/message: a
// human-readable progress line, optionally tagged with subagent
// metadata.
type MessageNotification struct {
	Level string `json:"level,omitempty"`
	Data  any    `json:"data,omitempty"`

	SubagentID   string `json:"subagent_id,omitempty"`
	SubagentTask string `json:"subagent_task,omitempty"`
}

// ProgressNotification is the payload of notifications/progress.
type ProgressNotification struct {
	ProgressToken any      `json:"progressToken"`
	Progress      float64  `json:"progress"`
	Total         *float64 `json:"total,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// CallOutcome is the terminal result of one tool dispatch. Exactly one
// of Content or Err is set.
type CallOutcome struct {
	Content []types.Content
	Err     *types.ToolError
}

// ToolCallResult is what Dispatch hands back: a lazy stream of
// out-of-band notifications for the lifetime of the call, and a
// single-element result channel.
type ToolCallResult struct {
	Notifications <-chan JSONRPCMessage
	Result        <-chan CallOutcome
}

// immediateResult builds a ToolCallResult that is already finished.
func immediateResult(outcome CallOutcome) ToolCallResult {
	notifications := make(chan JSONRPCMessage)
	close(notifications)
	result := make(chan CallOutcome, 1)
	result <- outcome
	close(result)
	return ToolCallResult{Notifications: notifications, Result: result}
}

// errorResult builds an already-failed ToolCallResult.
func errorResult(kind types.ToolErrorKind, format string, args ...any) ToolCallResult {
	return immediateResult(CallOutcome{Err: &types.ToolError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}})
}

// ProtocolVersion is the tool-server protocol version spoken over stdio.
const ProtocolVersion = "2024-11-05"
