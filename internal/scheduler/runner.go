package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/goosehq/goose/internal/agent"
	"github.com/goosehq/goose/internal/config"
	"github.com/goosehq/goose/internal/extension"
	"github.com/goosehq/goose/internal/logging"
	"github.com/goosehq/goose/internal/provider"
	"github.com/goosehq/goose/pkg/types"
)

// Runner executes one scheduled firing as a headless agent session and
// blocks until it finishes. Tests inject a mock.
type Runner interface {
	Run(ctx context.Context, recipe *types.Recipe, sessionID, jobID string, mode types.ExecutionMode) error
}

// AgentRunner is the production runner: it builds a provider from the
// global GOOSE_PROVIDER/GOOSE_MODEL configuration, starts the recipe's
// extensions, and drives the reply loop with the recipe prompt.
type AgentRunner struct {
	Store *config.Store
}

// Run implements Runner.
func (r *AgentRunner) Run(ctx context.Context, rcp *types.Recipe, sessionID, jobID string, mode types.ExecutionMode) error {
	store := r.Store
	if store == nil {
		store = config.Global()
	}

	prov, err := provider.FromConfig(ctx, store)
	if err != nil {
		return fmt.Errorf("failed to build provider: %w", err)
	}
	if rcp.Settings != nil && rcp.Settings.GooseModel != "" {
		// Recipe settings override the global model selection.
		if p, err := provider.FromConfigWithModel(ctx, store, rcp.Settings.GooseProvider, rcp.Settings.GooseModel); err == nil {
			prov = p
		} else {
			logging.Warn().Err(err).Msg("recipe model override failed; using global provider")
		}
	}

	manager := extension.NewManager(store)
	defer manager.Close()
	for _, cfg := range rcp.Extensions {
		if err := manager.AddExtension(ctx, cfg); err != nil {
			logging.Warn().Str("extension", cfg.Name).Err(err).Msg("scheduled run could not start extension")
		}
	}

	a := agent.New(prov, manager, store, agent.WithRecipe(rcp))

	prompt := rcp.Prompt
	if prompt == "" {
		prompt = rcp.Instructions
	}
	if prompt == "" {
		return fmt.Errorf("recipe has no prompt")
	}

	events, err := a.Reply(ctx, []types.Message{{
		Role:    types.RoleUser,
		Created: time.Now(),
		Content: []types.Content{types.NewTextContent(prompt)},
	}}, &agent.SessionConfig{
		ID:            sessionID,
		ScheduleID:    jobID,
		ExecutionMode: mode,
	})
	if err != nil {
		return err
	}

	// The loop persists each message itself; draining keeps it moving.
	for range events {
	}
	return ctx.Err()
}
