package agent

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/goosehq/goose/internal/event"
	"github.com/goosehq/goose/internal/logging"
	"github.com/goosehq/goose/internal/permission"
	"github.com/goosehq/goose/internal/provider"
	"github.com/goosehq/goose/internal/sessionlog"
	"github.com/goosehq/goose/pkg/types"
)

const (
	// DefaultMaxTurns caps the loop when neither session config nor the
	// config store override it.
	DefaultMaxTurns = 1000

	// MaxTurnsKey and ModeKey are the config store keys consulted per
	// invocation.
	MaxTurnsKey = "goose_max_turns"
	ModeKey     = "goose_mode"

	// MaxRetries bounds provider retry attempts per turn.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime is the maximum total time spent retrying.
	RetryMaxElapsedTime = 2 * time.Minute
)

// maxTurnsMessage is yielded when the turn cap is reached.
const maxTurnsMessage = "I have reached the maximum number of turns allowed for this request. Send a new message to continue."

// newRetryBackoff creates the jittered exponential backoff used around
// provider calls.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// replyState is the per-invocation state of one Reply call.
type replyState struct {
	events  chan AgentEvent
	session *SessionConfig

	sessionPath string
	meta        types.SessionMetadata

	mode     permission.GooseMode
	maxTurns int

	messages []types.Message
	snapshot []types.Message // initial messages, for the retry hook

	tools     []types.Tool
	toolIndex map[string]types.Tool
	system    string

	turnCount     int
	retryAttempts int
}

// Reply runs the agent loop over the given messages and returns the
// lazy event sequence. The sequence ends when the loop exits; cancel ctx
// to stop it early.
func (a *Agent) Reply(ctx context.Context, messages []types.Message, session *SessionConfig) (<-chan AgentEvent, error) {
	state := &replyState{
		events:   make(chan AgentEvent),
		session:  session,
		messages: append([]types.Message(nil), messages...),
		snapshot: append([]types.Message(nil), messages...),
	}

	state.mode = a.resolveMode(session)
	state.maxTurns = a.resolveMaxTurns(session)

	if session != nil && session.ID != "" {
		path, err := sessionlog.Resolve(types.NameIdentifier(session.ID))
		if err != nil {
			return nil, err
		}
		state.sessionPath = path

		meta, err := sessionlog.ReadMetadata(path)
		if err != nil {
			meta = types.SessionMetadata{WorkingDir: session.WorkingDir}
			if session.ScheduleID != "" {
				meta.ScheduleID = session.ScheduleID
			}
		}
		state.meta = meta

		event.Publish(event.Event{
			Type: event.SessionCreated,
			Data: event.SessionCreatedData{SessionID: session.ID, Path: path, ScheduleID: session.ScheduleID},
		})
	}

	go func() {
		defer close(state.events)
		a.runLoop(ctx, state)
		if session != nil && session.ID != "" {
			event.Publish(event.Event{Type: event.SessionIdle, Data: event.SessionIdleData{SessionID: session.ID}})
		}
	}()

	return state.events, nil
}

// resolveMode applies the mode resolution order: session execution mode,
// then global config, then the smart default.
func (a *Agent) resolveMode(session *SessionConfig) permission.GooseMode {
	if session != nil && session.ExecutionMode != "" {
		return permission.ModeForExecution(session.ExecutionMode)
	}
	if a.store != nil {
		if mode, err := a.store.GetString(ModeKey); err == nil {
			return permission.ParseMode(mode)
		}
	}
	return permission.ModeSmartApprove
}

func (a *Agent) resolveMaxTurns(session *SessionConfig) int {
	if session != nil && session.MaxTurns > 0 {
		return session.MaxTurns
	}
	if a.store != nil {
		if v := a.store.GetInt(MaxTurnsKey, 0); v > 0 {
			return v
		}
	}
	return DefaultMaxTurns
}

// yield sends an event, respecting back-pressure and cancellation.
// Returns false when the consumer is gone.
func (s *replyState) yield(ctx context.Context, ev AgentEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// yieldFinal delivers one last event after cancellation was observed.
// The context is no longer usable as a gate, so the send is bounded by a
// short timer instead of blocking forever on a gone consumer.
func (s *replyState) yieldFinal(ev AgentEvent) {
	select {
	case s.events <- ev:
	case <-time.After(2 * time.Second):
	}
}

// yieldAssistantText yields a plain assistant text message without
// recording it in the session.
func (s *replyState) yieldAssistantText(ctx context.Context, text string) {
	s.yield(ctx, messageEvent(types.Message{
		Role:    types.RoleAssistant,
		Created: time.Now(),
		Content: []types.Content{types.NewTextContent(text)},
	}))
}

// runLoop is the outer state machine: one iteration per model turn.
func (a *Agent) runLoop(ctx context.Context, state *replyState) {
	a.deriveTools(ctx, state)
	retry := newRetryBackoff(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		// A previously stored final output ends the conversation.
		if final := a.finalOutputState(); final != nil {
			if value, ok := final.get(); ok {
				state.yieldAssistantText(ctx, value)
				return
			}
		}

		state.turnCount++
		if state.turnCount > state.maxTurns {
			msg := types.Message{
				Role:    types.RoleAssistant,
				Created: time.Now(),
				Content: []types.Content{types.NewTextContent(maxTurnsMessage)},
			}
			state.messages = append(state.messages, msg)
			a.persistSession(state)
			state.yield(ctx, messageEvent(msg))
			return
		}

		turn, err := a.runTurn(ctx, state)
		if err != nil {
			if provider.IsContextLengthExceeded(err) {
				state.yield(ctx, messageEvent(types.Message{
					Role:    types.RoleAssistant,
					Created: time.Now(),
					Content: []types.Content{types.NewContextLengthExceededContent(err.Error())},
				}))
				return
			}
			if provider.IsRetryable(err) {
				if wait := retry.NextBackOff(); wait != backoff.Stop {
					logging.Warn().Err(err).Dur("wait", wait).Msg("provider error; retrying turn")
					time.Sleep(wait)
					state.turnCount--
					continue
				}
			}
			state.yieldAssistantText(ctx, fmt.Sprintf(
				"The model request failed: %v\nYou can retry by sending your message again.", err))
			return
		}
		retry.Reset()

		if turn.cancelled {
			return
		}

		if len(turn.appended) == 0 {
			// No tool calls happened this turn.
			if final := a.finalOutputState(); final != nil {
				if _, ok := final.get(); !ok {
					nudge := types.Message{
						Role:    types.RoleUser,
						Created: time.Now(),
						Content: []types.Content{types.NewTextContent(finalOutputContinuationText)},
					}
					state.messages = append(state.messages, nudge)
					a.persistSession(state)
					if !state.yield(ctx, messageEvent(nudge)) {
						return
					}
					continue
				}
				continue // final output just filled; next iteration yields it
			}

			if a.shouldRetry(ctx, state.retryAttempts) {
				state.retryAttempts++
				state.messages = append([]types.Message(nil), state.snapshot...)
				if final := a.finalOutputState(); final != nil {
					final.clear()
				}
				continue
			}
			return
		}

		state.messages = append(state.messages, turn.appended...)
		a.persistSession(state)
		if turn.toolsUpdated {
			a.deriveTools(ctx, state)
		}
	}
}

// turnResult summarizes one model turn.
type turnResult struct {
	appended     []types.Message
	toolsUpdated bool
	cancelled    bool
}

// runTurn streams one provider completion and handles its tool calls.
func (a *Agent) runTurn(ctx context.Context, state *replyState) (*turnResult, error) {
	stream, err := a.openStream(ctx, state)
	if err != nil {
		return nil, err
	}

	result := &turnResult{}

	for {
		if ctx.Err() != nil {
			result.cancelled = true
			return result, nil
		}

		item, err := stream.Recv()
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return nil, err
		}

		if item.Usage != nil {
			a.accountUsage(state, *item.Usage)
			a.maybeEmitModelChange(ctx, state, item.Usage.Model)
		}

		if item.Message == nil {
			continue
		}

		frontendReqs, toolReqs, hasContent := partitionResponse(a, item.Message)

		if len(toolReqs) == 0 && len(frontendReqs) == 0 {
			// Pure content: record it and keep reading; the provider
			// may emit more. It does not count as tool activity, so the
			// end-of-turn step still sees an empty append buffer.
			if hasContent {
				state.messages = append(state.messages, *item.Message)
				a.persistSession(state)
				if !state.yield(ctx, messageEvent(*item.Message)) {
					result.cancelled = true
					return result, nil
				}
			}
			continue
		}

		// The full response joins the history so invariant A pairs every
		// request id with a response in the next user message.
		assistant := *item.Message
		result.appended = append(result.appended, assistant)

		// Yield the response without frontend requests; those go to the
		// caller through a separate synthetic message.
		if !state.yield(ctx, messageEvent(withoutFrontendRequests(a, assistant))) {
			result.cancelled = true
			return result, nil
		}

		a.recordToolUse(toolReqs)

		userMsg, outcome := a.handleTools(ctx, state, toolReqs, frontendReqs)
		if outcome.toolsUpdated {
			result.toolsUpdated = true
		}
		result.appended = append(result.appended, userMsg)

		if outcome.cancelled {
			state.messages = append(state.messages, result.appended...)
			a.persistSession(state)
			state.yieldFinal(messageEvent(userMsg))
			state.yieldFinal(messageEvent(types.Message{
				Role:    types.RoleAssistant,
				Created: time.Now(),
				Content: []types.Content{types.NewTextContent("Tool call cancelled")},
			}))
			result.cancelled = true
			return result, nil
		}

		if !state.yield(ctx, messageEvent(userMsg)) {
			result.cancelled = true
			return result, nil
		}
	}
}

// openStream starts a provider completion, preferring native streaming.
func (a *Agent) openStream(ctx context.Context, state *replyState) (*provider.Stream, error) {
	if streamer, ok := a.provider.(provider.Streamer); ok {
		return streamer.Stream(ctx, state.system, state.messages, state.tools)
	}
	return provider.FallbackStream(ctx, a.provider, state.system, state.messages, state.tools)
}

// accountUsage folds a usage report into session metadata and persists
// the header without touching message lines.
func (a *Agent) accountUsage(state *replyState, usage types.ProviderUsage) {
	state.meta.ApplyUsage(usage)
	if state.sessionPath == "" {
		return
	}
	if err := sessionlog.UpdateMetadata(state.sessionPath, state.meta); err != nil {
		logging.Warn().Err(err).Msg("failed to persist session usage counters")
	}
}

// maybeEmitModelChange yields a ModelChange event when a lead/worker
// pair switches its active sub-model.
func (a *Agent) maybeEmitModelChange(ctx context.Context, state *replyState, model string) {
	if model == "" {
		return
	}
	if _, ok := a.provider.(*provider.LeadWorkerProvider); !ok {
		return
	}

	a.modelMu.Lock()
	changed := a.lastModel != "" && a.lastModel != model
	a.lastModel = model
	a.modelMu.Unlock()

	if changed {
		state.yield(ctx, modelChangeEvent(model, string(state.mode)))
		event.Publish(event.Event{
			Type: event.ModelChanged,
			Data: event.ModelChangedData{Model: model, Mode: string(state.mode)},
		})
	}
}

// recordToolUse feeds the router's recent-use set.
func (a *Agent) recordToolUse(requests []types.ToolRequestContent) {
	a.routerMu.Lock()
	selector := a.selector
	a.routerMu.Unlock()
	if selector == nil {
		return
	}
	for _, req := range requests {
		if req.Call != nil {
			selector.RecordUse(req.Call.Name)
		}
	}
}

// persistSession writes the message list (and derives a description on
// first write) when a session file is configured.
func (a *Agent) persistSession(state *replyState) {
	if state.sessionPath == "" {
		return
	}

	scheduleID := ""
	if state.session != nil {
		scheduleID = state.session.ScheduleID
	}
	if err := sessionlog.PersistMessagesWithScheduleID(state.sessionPath, state.messages, a.provider, scheduleID); err != nil {
		logging.Error().Err(err).Str("path", state.sessionPath).Msg("failed to persist session")
		return
	}
	// Token counters live in our copy; fold them back into the header.
	if meta, err := sessionlog.ReadMetadata(state.sessionPath); err == nil {
		meta.InputTokens = state.meta.InputTokens
		meta.OutputTokens = state.meta.OutputTokens
		meta.TotalTokens = state.meta.TotalTokens
		meta.AccumulatedInputTokens = state.meta.AccumulatedInputTokens
		meta.AccumulatedOutputTokens = state.meta.AccumulatedOutputTokens
		meta.AccumulatedTotalTokens = state.meta.AccumulatedTotalTokens
		state.meta = meta
		if err := sessionlog.UpdateMetadata(state.sessionPath, meta); err != nil {
			logging.Warn().Err(err).Msg("failed to persist session counters")
		}
	}
}

// partitionResponse splits a provider response into frontend tool
// requests, other tool requests, and reports whether any non-tool
// content exists.
func partitionResponse(a *Agent, msg *types.Message) (frontend, tools []types.ToolRequestContent, hasContent bool) {
	for _, c := range msg.Content {
		if c.Kind != types.ContentToolRequest || c.ToolRequest == nil {
			if c.Kind != types.ContentToolRequest {
				hasContent = true
			}
			continue
		}
		req := *c.ToolRequest
		if req.Call != nil && a.extensions.IsFrontendTool(req.Call.Name) {
			frontend = append(frontend, req)
		} else {
			tools = append(tools, req)
		}
	}
	return frontend, tools, hasContent
}

// withoutFrontendRequests strips frontend tool requests from the yielded
// copy of an assistant message.
func withoutFrontendRequests(a *Agent, msg types.Message) types.Message {
	out := msg
	out.Content = nil
	for _, c := range msg.Content {
		if c.Kind == types.ContentToolRequest && c.ToolRequest != nil && c.ToolRequest.Call != nil &&
			a.extensions.IsFrontendTool(c.ToolRequest.Call.Name) {
			continue
		}
		out.Content = append(out.Content, c)
	}
	return out
}
