package headless

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goosehq/goose/internal/agent"
	"github.com/goosehq/goose/internal/extension"
	"github.com/goosehq/goose/pkg/types"
)

// Printer renders agent events in the configured output format.
type Printer struct {
	w      io.Writer
	format OutputFormat
	quiet  bool
}

// NewPrinter creates a printer.
func NewPrinter(w io.Writer, format OutputFormat, quiet bool) *Printer {
	if format == "" {
		format = OutputText
	}
	return &Printer{w: w, format: format, quiet: quiet}
}

// Event renders one agent event.
func (p *Printer) Event(ev agent.AgentEvent) {
	switch p.format {
	case OutputJSONL:
		p.printJSONL(ev)
	case OutputJSON:
		// JSON mode prints only the final result.
	default:
		p.printText(ev)
	}
}

// Finish renders the final result.
func (p *Printer) Finish(result *Result) {
	switch p.format {
	case OutputJSON:
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(p.w, string(data))
	case OutputJSONL:
		line, _ := json.Marshal(map[string]any{"type": "result", "result": result})
		fmt.Fprintln(p.w, string(line))
	default:
		if result.Error != "" {
			fmt.Fprintf(p.w, "error: %s\n", result.Error)
		}
	}
}

func (p *Printer) printJSONL(ev agent.AgentEvent) {
	payload := map[string]any{"type": string(ev.Kind)}
	switch ev.Kind {
	case agent.EventMessage:
		payload["message"] = ev.Message
	case agent.EventNotification:
		payload["request_id"] = ev.Notification.RequestID
		payload["notification"] = ev.Notification.Message
	case agent.EventModelChange:
		payload["model"] = ev.ModelChange.Model
		payload["mode"] = ev.ModelChange.Mode
	}
	line, _ := json.Marshal(payload)
	fmt.Fprintln(p.w, string(line))
}

func (p *Printer) printText(ev agent.AgentEvent) {
	switch ev.Kind {
	case agent.EventMessage:
		p.printMessage(ev.Message)
	case agent.EventNotification:
		if p.quiet {
			return
		}
		if text := notificationText(ev.Notification.Message); text != "" {
			fmt.Fprintf(p.w, "  [%s] %s\n", ev.Notification.RequestID, text)
		}
	case agent.EventModelChange:
		if !p.quiet {
			fmt.Fprintf(p.w, "-- model switched to %s --\n", ev.ModelChange.Model)
		}
	}
}

func (p *Printer) printMessage(msg *types.Message) {
	for _, c := range msg.Content {
		switch c.Kind {
		case types.ContentText:
			if msg.Role == types.RoleAssistant {
				fmt.Fprintln(p.w, c.Text.Text)
			} else if !p.quiet {
				fmt.Fprintf(p.w, "> %s\n", c.Text.Text)
			}
		case types.ContentToolRequest:
			if p.quiet || c.ToolRequest.Call == nil {
				continue
			}
			fmt.Fprintf(p.w, "-- calling %s --\n", c.ToolRequest.Call.Name)
		case types.ContentToolResponse:
			if p.quiet {
				continue
			}
			if c.ToolResponse.Error != nil {
				fmt.Fprintf(p.w, "-- tool failed: %s --\n", c.ToolResponse.Error.Message)
			}
		case types.ContentContextLengthExceeded:
			fmt.Fprintln(p.w, "-- context window exceeded --")
		}
	}
}

// notificationText extracts a displayable line from a notification.
func notificationText(msg extension.JSONRPCMessage) string {
	switch msg.Method {
	case extension.NotificationMessageMethod:
		var n extension.MessageNotification
		if err := json.Unmarshal(msg.Params, &n); err != nil {
			return ""
		}
		if s, ok := n.Data.(string); ok {
			return strings.TrimSpace(s)
		}
		return ""
	case extension.NotificationProgressMethod:
		var n extension.ProgressNotification
		if err := json.Unmarshal(msg.Params, &n); err != nil {
			return ""
		}
		if n.Total != nil && *n.Total > 0 {
			return fmt.Sprintf("%s %.0f%%", n.Message, 100*n.Progress/(*n.Total))
		}
		return n.Message
	}
	return ""
}
