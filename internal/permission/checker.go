package permission

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/goosehq/goose/internal/event"
)

// Decision is the UI's answer to a single permission prompt.
type Decision string

const (
	DecisionAllowOnce   Decision = "allow_once"
	DecisionAlwaysAllow Decision = "always_allow"
	DecisionDenyOnce    Decision = "deny_once"
	DecisionCancel      Decision = "cancel"
)

// Request asks the user whether one tool call may run.
type Request struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	ToolName  string `json:"toolName"`
	Arguments string `json:"arguments,omitempty"`
	Prompt    string `json:"prompt"`
}

// Checker brokers interactive permission decisions between the agent
// loop and whatever UI is attached. Ask publishes a permission.required
// event and blocks until the UI calls Respond with the same request id.
type Checker struct {
	mu      sync.Mutex
	pending map[string]chan Decision
}

// NewChecker creates a new permission checker.
func NewChecker() *Checker {
	return &Checker{pending: make(map[string]chan Decision)}
}

// Ask prompts the user and waits for the decision. Context cancellation
// resolves to Cancel.
func (c *Checker) Ask(ctx context.Context, req Request) Decision {
	if req.ID == "" {
		req.ID = ulid.Make().String()
	}

	respChan := make(chan Decision, 1)
	c.mu.Lock()
	c.pending[req.ID] = respChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	event.Publish(event.Event{
		Type: event.PermissionRequired,
		Data: event.PermissionRequiredData{
			ID:        req.ID,
			SessionID: req.SessionID,
			ToolName:  req.ToolName,
			Arguments: req.Arguments,
			Prompt:    req.Prompt,
		},
	})

	select {
	case <-ctx.Done():
		return DecisionCancel
	case decision := <-respChan:
		return decision
	}
}

// Respond delivers the user's decision for a pending request. Unknown
// request ids are ignored; the prompt may already have been cancelled.
func (c *Checker) Respond(requestID string, decision Decision) {
	c.mu.Lock()
	ch, ok := c.pending[requestID]
	c.mu.Unlock()

	if ok {
		select {
		case ch <- decision:
		default:
		}
	}

	event.Publish(event.Event{
		Type: event.PermissionResolved,
		Data: event.PermissionResolvedData{
			ID:      requestID,
			Granted: decision == DecisionAllowOnce || decision == DecisionAlwaysAllow,
		},
	})
}
