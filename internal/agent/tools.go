package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goosehq/goose/internal/extension"
	"github.com/goosehq/goose/internal/logging"
	"github.com/goosehq/goose/internal/permission"
	"github.com/goosehq/goose/pkg/types"
)

// Fixed tool-response texts surfaced to the user and the model.
const (
	chatModeSkippedText = "Tool call skipped (chat mode)"
	declinedText        = "The user has declined to run this tool"
	cancelledText       = "Tool call cancelled by user"
	repetitionCapText   = "Tool call rejected: exceeded maximum allowed repetitions"
)

// deriveTools rebuilds the catalog and system prompt from the current
// extension set, platform tools, the final-output tool, sub-recipe
// tools, and frontend tools. Called at loop start and after any
// successful manage_extensions call.
func (a *Agent) deriveTools(ctx context.Context, state *replyState) {
	tools := a.extensions.Tools(ctx)

	a.routerMu.Lock()
	selector := a.selector
	a.routerMu.Unlock()
	if selector != nil {
		tools = selector.Select(lastUserText(state.messages), tools)
	}

	tools = append(tools, a.platformTools()...)

	if final := a.finalOutputState(); final != nil {
		tools = append(tools, final.tool())
	}
	if recipe := a.activeRecipe(); recipe != nil {
		for _, sub := range recipe.SubRecipes {
			tools = append(tools, subRecipeTool(sub))
		}
	}
	tools = append(tools, a.extensions.FrontendTools()...)

	sort.SliceStable(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	state.tools = tools
	state.toolIndex = make(map[string]types.Tool, len(tools))
	for _, tool := range tools {
		state.toolIndex[tool.Name] = tool
	}
	state.system = a.buildSystemPrompt(state.session)
}

// lastUserText finds the most recent user text for router queries.
func lastUserText(messages []types.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != types.RoleUser {
			continue
		}
		for _, c := range messages[i].Content {
			if c.Kind == types.ContentText && c.Text != nil {
				return c.Text.Text
			}
		}
	}
	return ""
}

// toolsOutcome reports what tool handling did to the turn.
type toolsOutcome struct {
	cancelled    bool
	toolsUpdated bool
}

// responseSet collects tool responses keyed by request id, preserving
// request-id-first-seen order for the final user message.
type responseSet struct {
	mu        sync.Mutex
	order     []string
	responses map[string]types.Content
}

func newResponseSet(requests ...[]types.ToolRequestContent) *responseSet {
	rs := &responseSet{responses: make(map[string]types.Content)}
	for _, group := range requests {
		for _, req := range group {
			rs.order = append(rs.order, req.ID)
		}
	}
	return rs
}

func (rs *responseSet) set(id string, content types.Content) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.responses[id] = content
}

func (rs *responseSet) setError(id string, kind types.ToolErrorKind, message string) {
	rs.set(id, types.NewToolResponseError(id, &types.ToolError{Kind: kind, Message: message}))
}

// fillMissing gives every unanswered request the given error, used on
// cancellation.
func (rs *responseSet) fillMissing(kind types.ToolErrorKind, message string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, id := range rs.order {
		if _, ok := rs.responses[id]; !ok {
			rs.responses[id] = types.NewToolResponseError(id, &types.ToolError{Kind: kind, Message: message})
		}
	}
}

// message finalizes the user message carrying the responses.
func (rs *responseSet) message() types.Message {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	msg := types.Message{Role: types.RoleUser, Created: time.Now()}
	for _, id := range rs.order {
		if content, ok := rs.responses[id]; ok {
			msg.Content = append(msg.Content, content)
		}
	}
	return msg
}

// handleTools gates, dispatches, and collects one turn's tool calls,
// returning the user message carrying the responses.
func (a *Agent) handleTools(ctx context.Context, state *replyState, toolReqs, frontendReqs []types.ToolRequestContent) (types.Message, toolsOutcome) {
	outcome := toolsOutcome{}
	rs := newResponseSet(toolReqs, frontendReqs)

	// Requests whose payload never parsed answer themselves.
	var valid []types.ToolRequestContent
	for _, req := range toolReqs {
		if req.Call == nil {
			message := "malformed tool call"
			if req.Error != nil {
				message = req.Error.Message
			}
			rs.setError(req.ID, types.ToolErrInvalidParameters, message)
			continue
		}
		valid = append(valid, req)
	}

	// Chat mode short-circuits everything.
	if state.mode == permission.ModeChat {
		for _, req := range valid {
			rs.set(req.ID, types.NewToolResponseContent(req.ID, []types.Content{
				types.NewTextContent(chatModeSkippedText),
			}))
		}
		for _, req := range frontendReqs {
			rs.set(req.ID, types.NewToolResponseContent(req.ID, []types.Content{
				types.NewTextContent(chatModeSkippedText),
			}))
		}
		return rs.message(), outcome
	}

	parts := permission.Partition(state.mode, a.permStore, state.toolIndex, valid)

	for _, req := range parts.Denied {
		rs.setError(req.ID, types.ToolErrExecutionError, declinedText)
	}

	approved := parts.Approved
	for _, req := range parts.NeedsApproval {
		decision := a.askPermission(ctx, state, req)
		switch decision {
		case permission.DecisionAllowOnce:
			approved = append(approved, req)
		case permission.DecisionAlwaysAllow:
			approved = append(approved, req)
			if err := a.permStore.Set(req.Call.Name, permission.AlwaysAllow); err != nil {
				// The approval itself still holds.
				logging.Warn().Err(err).Str("tool", req.Call.Name).Msg("failed to persist always-allow decision")
			}
		case permission.DecisionDenyOnce:
			rs.setError(req.ID, types.ToolErrExecutionError, declinedText)
		case permission.DecisionCancel:
			rs.setError(req.ID, types.ToolErrExecutionError, cancelledText)
			rs.fillMissing(types.ToolErrExecutionError, cancelledText)
			outcome.cancelled = true
			return rs.message(), outcome
		}
	}

	// Frontend requests go to the caller through a synthetic assistant
	// message; their responses come back through the inbound channel.
	if len(frontendReqs) > 0 {
		if cancelled := a.handleFrontendRequests(ctx, state, frontendReqs, rs); cancelled {
			rs.fillMissing(types.ToolErrExecutionError, cancelledText)
			outcome.cancelled = true
			return rs.message(), outcome
		}
	}

	// Dispatch everything approved concurrently.
	var wg sync.WaitGroup
	for _, req := range approved {
		// The repetition monitor gates each dispatch first.
		a.monitorMu.Lock()
		mon := a.monitor
		a.monitorMu.Unlock()
		if mon != nil && !mon.Check(*req.Call) {
			rs.setError(req.ID, types.ToolErrExecutionError, repetitionCapText)
			continue
		}

		if handled, content, toolErr, updated := a.dispatchPlatform(ctx, state, req); handled {
			if updated {
				outcome.toolsUpdated = true
			}
			if toolErr != nil {
				rs.set(req.ID, types.NewToolResponseError(req.ID, toolErr))
			} else {
				rs.set(req.ID, types.NewToolResponseContent(req.ID, content))
			}
			continue
		}

		wg.Add(1)
		go func(req types.ToolRequestContent) {
			defer wg.Done()
			a.dispatchExtension(ctx, state, req, rs)
		}(req)
	}
	wg.Wait()

	if ctx.Err() != nil {
		rs.fillMissing(types.ToolErrExecutionError, cancelledText)
		outcome.cancelled = true
	}
	return rs.message(), outcome
}

// askPermission prompts the user for one request through the checker.
func (a *Agent) askPermission(ctx context.Context, state *replyState, req types.ToolRequestContent) permission.Decision {
	sessionID := ""
	if state.session != nil {
		sessionID = state.session.ID
	}
	return a.checker.Ask(ctx, permission.Request{
		ID:        req.ID,
		SessionID: sessionID,
		ToolName:  req.Call.Name,
		Arguments: extension.MarshalArgsForPrompt(req.Call.Arguments),
		Prompt:    "Allow " + req.Call.Name + " to run?",
	})
}

// dispatchExtension routes one call to the extension manager, forwarding
// its notifications as events and attaching the result by request id.
func (a *Agent) dispatchExtension(ctx context.Context, state *replyState, req types.ToolRequestContent, rs *responseSet) {
	call := a.extensions.Dispatch(ctx, *req.Call)

	var forward sync.WaitGroup
	forward.Add(1)
	go func() {
		defer forward.Done()
		for n := range call.Notifications {
			state.yield(ctx, notificationEvent(req.ID, n))
		}
	}()

	outcome, ok := <-call.Result
	forward.Wait()

	if !ok {
		rs.setError(req.ID, types.ToolErrExecutionError, "extension closed without a result")
		return
	}
	if outcome.Err != nil {
		rs.set(req.ID, types.NewToolResponseError(req.ID, outcome.Err))
		return
	}
	rs.set(req.ID, types.NewToolResponseContent(req.ID, outcome.Content))
}

// handleFrontendRequests yields the synthetic assistant message holding
// the frontend requests and waits for the caller to deliver each
// response. Returns true when cancelled.
func (a *Agent) handleFrontendRequests(ctx context.Context, state *replyState, requests []types.ToolRequestContent, rs *responseSet) bool {
	synthetic := types.Message{Role: types.RoleAssistant, Created: time.Now()}
	waiting := make(map[string]bool, len(requests))
	for _, req := range requests {
		if req.Call == nil {
			rs.setError(req.ID, types.ToolErrInvalidParameters, "malformed tool call")
			continue
		}
		synthetic.Content = append(synthetic.Content, types.NewFrontendToolRequestContent(req.ID, *req.Call))
		waiting[req.ID] = true
	}
	if len(waiting) == 0 {
		return false
	}

	if !state.yield(ctx, messageEvent(synthetic)) {
		return true
	}

	for len(waiting) > 0 {
		select {
		case resp := <-a.frontendResponses:
			if !waiting[resp.ID] {
				continue // stale response from an earlier turn
			}
			delete(waiting, resp.ID)
			rs.set(resp.ID, types.Content{Kind: types.ContentToolResponse, ToolResponse: &resp})
		case <-ctx.Done():
			return true
		}
	}
	return false
}
