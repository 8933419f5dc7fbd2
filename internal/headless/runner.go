// Package headless drives a single agent run without an interactive UI:
// the `goose run` command and CI-style invocations.
package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goosehq/goose/internal/agent"
	"github.com/goosehq/goose/internal/config"
	"github.com/goosehq/goose/internal/extension"
	"github.com/goosehq/goose/internal/logging"
	"github.com/goosehq/goose/internal/monitor"
	"github.com/goosehq/goose/internal/provider"
	"github.com/goosehq/goose/internal/recipe"
	"github.com/goosehq/goose/internal/router"
	"github.com/goosehq/goose/internal/scheduler"
	"github.com/goosehq/goose/internal/sessionlog"
	"github.com/goosehq/goose/pkg/types"
)

// Runner executes one prompt or recipe headlessly.
type Runner struct {
	config *Config
	store  *config.Store
}

// NewRunner creates a headless runner over the global config store.
func NewRunner(cfg *Config) *Runner {
	return &Runner{config: cfg, store: config.Global()}
}

// Run executes the headless session, printing events to writer.
func (r *Runner) Run(ctx context.Context, writer io.Writer) (*Result, error) {
	printer := NewPrinter(writer, r.config.OutputFormat, r.config.Quiet)

	result, err := r.run(ctx, printer)
	if err != nil {
		result = &Result{Status: "error", ExitCode: classifyExit(err), Error: err.Error()}
	}
	printer.Finish(result)
	return result, err
}

func (r *Runner) run(ctx context.Context, printer *Printer) (*Result, error) {
	var activeRecipe *types.Recipe
	prompt := r.config.Prompt

	if r.config.RecipePath != "" {
		loaded, err := recipe.Load(r.config.RecipePath)
		if err != nil {
			return nil, err
		}
		rendered, err := recipe.Render(loaded, r.config.Params)
		if err != nil {
			return nil, err
		}
		activeRecipe = rendered
		if prompt == "" {
			prompt = rendered.Prompt
		}
	}
	if prompt == "" {
		return nil, errors.New("prompt is required")
	}

	prov, err := provider.FromConfig(ctx, r.store)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider: %w", err)
	}

	manager := extension.NewManager(r.store)
	defer manager.Close()

	extConfigs := defaultExtensions()
	if activeRecipe != nil && len(activeRecipe.Extensions) > 0 {
		extConfigs = activeRecipe.Extensions
	}
	for _, cfg := range extConfigs {
		if err := manager.AddExtension(ctx, cfg); err != nil {
			logging.Warn().Str("extension", cfg.Name).Err(err).Msg("extension failed to start")
		}
	}

	opts := []agent.Option{
		agent.WithToolMonitor(monitor.New(r.store.GetInt("goose_max_tool_repetitions", monitor.DefaultMaxRepetitions))),
	}
	if r.store.GetBool("goose_router_enabled") {
		opts = append(opts, agent.WithRouter(router.NewLexicalSelector(r.store.GetInt("goose_router_limit", router.DefaultLimit))))
	}
	if activeRecipe != nil {
		opts = append(opts, agent.WithRecipe(activeRecipe))
	}
	if r.store.GetBool("goose_scheduler_enabled") {
		sched, err := scheduler.NewEmbedded(config.GetPaths().SchedulerDir(), &scheduler.AgentRunner{Store: r.store})
		if err != nil {
			logging.Warn().Err(err).Msg("scheduler unavailable; platform__manage_schedule disabled")
		} else {
			defer sched.Stop()
			opts = append(opts, agent.WithScheduler(scheduler.Facade{S: sched}))
		}
	}

	a := agent.New(prov, manager, r.store, opts...)

	if r.config.AutoApprove {
		stop := AutoApprove(a.PermissionChecker())
		defer stop()
	}

	sessionName := r.config.SessionName
	if sessionName == "" {
		sessionName = sessionlog.GenerateName()
	}

	events, err := a.Reply(ctx, []types.Message{{
		Role:    types.RoleUser,
		Created: time.Now(),
		Content: []types.Content{types.NewTextContent(prompt)},
	}}, &agent.SessionConfig{
		ID:         sessionName,
		WorkingDir: r.config.WorkDir,
		MaxTurns:   r.config.MaxTurns,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Status: "success", ExitCode: ExitSuccess}
	for ev := range events {
		printer.Event(ev)
		if ev.Kind == agent.EventMessage && ev.Message.Role == types.RoleAssistant {
			result.Messages = append(result.Messages, *ev.Message)
			for _, c := range ev.Message.Content {
				if c.Kind == types.ContentText && c.Text != nil {
					result.FinalText = c.Text.Text
				}
				if c.Kind == types.ContentContextLengthExceeded {
					result.Status = "context_length_exceeded"
					result.ExitCode = ExitError
				}
			}
		}
	}
	return result, nil
}

// defaultExtensions is the extension set for bare-prompt runs.
func defaultExtensions() []types.ExtensionConfig {
	return []types.ExtensionConfig{
		{Kind: types.ExtensionBuiltin, Name: "developer"},
		{Kind: types.ExtensionBuiltin, Name: "fetch"},
	}
}

func classifyExit(err error) ExitCode {
	if errors.Is(err, context.Canceled) {
		return ExitError
	}
	var re *recipe.Error
	if errors.As(err, &re) {
		return ExitInvalidInput
	}
	if err != nil && err.Error() == "prompt is required" {
		return ExitInvalidInput
	}
	return ExitError
}
