package agent

import (
	"github.com/goosehq/goose/internal/extension"
	"github.com/goosehq/goose/pkg/types"
)

// EventKind discriminates the AgentEvent union.
type EventKind string

const (
	// EventMessage carries a complete conversation message.
	EventMessage EventKind = "message"
	// EventNotification carries an out-of-band JSON-RPC notification
	// from a tool call in flight, tagged with its request id.
	EventNotification EventKind = "mcp_notification"
	// EventModelChange reports a lead/worker provider switching its
	// active sub-model.
	EventModelChange EventKind = "model_change"
)

// AgentEvent is one element of the lazy sequence Reply yields.
type AgentEvent struct {
	Kind EventKind

	Message      *types.Message
	Notification *NotificationEvent
	ModelChange  *ModelChangeEvent
}

// NotificationEvent tags a notification with the tool request that
// produced it.
type NotificationEvent struct {
	RequestID string
	Message   extension.JSONRPCMessage
}

// ModelChangeEvent reports the newly active model.
type ModelChangeEvent struct {
	Model string
	Mode  string
}

func messageEvent(msg types.Message) AgentEvent {
	return AgentEvent{Kind: EventMessage, Message: &msg}
}

func notificationEvent(requestID string, msg extension.JSONRPCMessage) AgentEvent {
	return AgentEvent{Kind: EventNotification, Notification: &NotificationEvent{RequestID: requestID, Message: msg}}
}

func modelChangeEvent(model, mode string) AgentEvent {
	return AgentEvent{Kind: EventModelChange, ModelChange: &ModelChangeEvent{Model: model, Mode: mode}}
}
