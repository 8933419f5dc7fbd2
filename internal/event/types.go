package event

import "github.com/goosehq/goose/pkg/types"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	SessionID  string `json:"sessionID"`
	Path       string `json:"path"`
	ScheduleID string `json:"scheduleID,omitempty"`
}

// SessionIdleData is the data for session.idle events, published when a
// reply loop finishes and the session is waiting for user input.
type SessionIdleData struct {
	SessionID string `json:"sessionID"`
}

// MessageCreatedData is the data for message.created events.
type MessageCreatedData struct {
	SessionID string         `json:"sessionID"`
	Message   *types.Message `json:"message"`
}

// PermissionRequiredData is the data for permission.required events. The
// UI answers through permission.Checker.Respond with the same ID.
type PermissionRequiredData struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	ToolName  string `json:"toolName"`
	Arguments string `json:"arguments,omitempty"`
	Prompt    string `json:"prompt"`
}

// PermissionResolvedData is the data for permission.resolved events.
type PermissionResolvedData struct {
	ID      string `json:"id"`
	Granted bool   `json:"granted"`
}

// ExtensionChangedData is the data for extension.started and
// extension.stopped events.
type ExtensionChangedData struct {
	Name      string `json:"name"`
	ToolCount int    `json:"toolCount,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NotificationData is the data for notification.received events: an
// out-of-band JSON-RPC notification from an extension, scoped to the
// tool request that was in flight when it arrived.
type NotificationData struct {
	RequestID string `json:"requestID"`
	Method    string `json:"method"`
	Payload   any    `json:"payload,omitempty"`
}

// ModelChangedData is the data for model.changed events from a
// lead/worker provider pair.
type ModelChangedData struct {
	Model string `json:"model"`
	Mode  string `json:"mode"`
}

// ScheduleRunData is the data for schedule.started and schedule.finished
// events.
type ScheduleRunData struct {
	JobID     string `json:"jobID"`
	SessionID string `json:"sessionID,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ConfigChangedData is the data for config.changed events published by
// the config file watcher.
type ConfigChangedData struct {
	Path string `json:"path"`
}
