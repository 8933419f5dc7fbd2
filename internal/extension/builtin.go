package extension

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goosehq/goose/pkg/types"
)

// Builtin is an in-process extension: a named set of tools running in
// the goose process itself, no transport involved.
type Builtin struct {
	Name         string
	Instructions string
	Tools        []BuiltinTool
}

// BuiltinTool pairs a tool descriptor with its implementation. Run may
// emit out-of-band notifications through notify.
type BuiltinTool struct {
	Tool types.Tool
	Run  func(ctx context.Context, args json.RawMessage, notify func(JSONRPCMessage)) ([]types.Content, error)
}

// builtinFactories maps builtin extension names to constructors.
var builtinFactories = map[string]func() *Builtin{
	"developer": NewDeveloperExtension,
	"fetch":     NewFetchExtension,
}

// newBuiltin instantiates a registered builtin extension by name.
func newBuiltin(name string) (*Builtin, error) {
	factory, ok := builtinFactories[name]
	if !ok {
		return nil, fmt.Errorf("unknown builtin extension: %s", name)
	}
	return factory(), nil
}

// BuiltinNames lists the registered builtin extensions.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinFactories))
	for name := range builtinFactories {
		names = append(names, name)
	}
	return names
}

// notifyMessage builds a notifications/message frame for builtins and
// subagents.
func notifyMessage(level string, data any) JSONRPCMessage {
	params, _ := json.Marshal(MessageNotification{Level: level, Data: data})
	return JSONRPCMessage{JSONRPC: "2.0", Method: NotificationMessageMethod, Params: params}
}

// notifyProgress builds a notifications/progress frame.
func notifyProgress(token any, progress float64, total *float64, message string) JSONRPCMessage {
	params, _ := json.Marshal(ProgressNotification{
		ProgressToken: token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
	return JSONRPCMessage{JSONRPC: "2.0", Method: NotificationProgressMethod, Params: params}
}
