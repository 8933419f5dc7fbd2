package provider

import (
	"context"
	"sync"

	"github.com/goosehq/goose/pkg/types"
)

// DefaultLeadTurns is how many completions the lead model handles before
// the pair hands off to the worker.
const DefaultLeadTurns = 3

// DefaultFailureThreshold is how many consecutive worker failures send
// the pair back to the lead for a turn.
const DefaultFailureThreshold = 2

// LeadWorkerProvider pairs a stronger lead model with a cheaper worker:
// the lead handles the opening turns (and recovery after repeated worker
// failures), the worker everything else. Usage reports carry the active
// sub-model's name so the agent can emit a ModelChange event.
type LeadWorkerProvider struct {
	lead   Provider
	worker Provider

	leadTurns        int
	failureThreshold int

	mu           sync.Mutex
	completions  int
	failures     int
	recoverTurns int
}

// NewLeadWorker creates a lead/worker pair with default thresholds.
func NewLeadWorker(lead, worker Provider) *LeadWorkerProvider {
	return &LeadWorkerProvider{
		lead:             lead,
		worker:           worker,
		leadTurns:        DefaultLeadTurns,
		failureThreshold: DefaultFailureThreshold,
	}
}

// Name returns the currently active sub-model's name.
func (p *LeadWorkerProvider) Name() string {
	return p.active().Name()
}

// active picks the provider for the next completion.
func (p *LeadWorkerProvider) active() Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeLocked()
}

func (p *LeadWorkerProvider) activeLocked() Provider {
	if p.completions < p.leadTurns || p.recoverTurns > 0 {
		return p.lead
	}
	return p.worker
}

// Complete implements Provider, delegating to the active sub-model and
// tracking worker failures for lead fallback.
func (p *LeadWorkerProvider) Complete(ctx context.Context, system string, messages []types.Message, tools []types.Tool) (*types.Message, types.ProviderUsage, error) {
	p.mu.Lock()
	active := p.activeLocked()
	if p.recoverTurns > 0 {
		p.recoverTurns--
	}
	p.mu.Unlock()

	msg, usage, err := active.Complete(ctx, system, messages, tools)

	p.mu.Lock()
	p.completions++
	if err != nil && active == p.worker && IsRetryable(err) {
		p.failures++
		if p.failures >= p.failureThreshold {
			p.recoverTurns = 1
			p.failures = 0
		}
	} else if err == nil {
		p.failures = 0
	}
	p.mu.Unlock()

	usage.Model = active.Name()
	return msg, usage, err
}

// Stream implements Streamer when the active sub-model supports it,
// falling back to a single-item stream over Complete.
func (p *LeadWorkerProvider) Stream(ctx context.Context, system string, messages []types.Message, tools []types.Tool) (*Stream, error) {
	active := p.active()
	if streamer, ok := active.(Streamer); ok {
		p.mu.Lock()
		p.completions++
		if p.recoverTurns > 0 {
			p.recoverTurns--
		}
		p.mu.Unlock()
		return streamer.Stream(ctx, system, messages, tools)
	}
	return FallbackStream(ctx, p, system, messages, tools)
}

// FallbackStream adapts any Provider into a single-item Stream, used by
// the agent loop when the provider has no native streaming.
func FallbackStream(ctx context.Context, p Provider, system string, messages []types.Message, tools []types.Tool) (*Stream, error) {
	items := make(chan StreamItem, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errCh)

		msg, usage, err := p.Complete(ctx, system, messages, tools)
		if err != nil {
			errCh <- err
			return
		}
		select {
		case items <- StreamItem{Message: msg, Usage: &usage}:
		case <-ctx.Done():
		}
	}()

	return NewStream(items, errCh), nil
}
