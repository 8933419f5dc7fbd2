package agent

import (
	"sync"

	"github.com/goosehq/goose/internal/config"
	"github.com/goosehq/goose/internal/extension"
	"github.com/goosehq/goose/internal/monitor"
	"github.com/goosehq/goose/internal/permission"
	"github.com/goosehq/goose/internal/provider"
	"github.com/goosehq/goose/internal/router"
	"github.com/goosehq/goose/pkg/types"
)

// SessionConfig carries the per-invocation session parameters of Reply.
type SessionConfig struct {
	// ID names the session; when set, messages and metadata persist to
	// the session file as the loop appends them.
	ID         string
	WorkingDir string
	ScheduleID string

	ExecutionMode types.ExecutionMode

	// MaxTurns caps assistant completions for this invocation; zero
	// falls back to config and then the default.
	MaxTurns int
}

// Scheduler is the slice of the scheduler contract the
// platform__manage_schedule tool needs. The concrete scheduler is
// injected to keep the dependency one-directional.
type Scheduler interface {
	AddFromPath(id, recipePath, cron string) error
	List() ([]types.ScheduledJob, error)
	Remove(id string) error
	Pause(id string) error
	Unpause(id string) error
	RunNow(id string) (string, error)
	KillRunning(id string) error
	Sessions(id string, limit int) ([]types.SessionMetadata, error)
}

// Agent drives the reply loop: provider completions interleaved with
// tool dispatch, permission gating, and session persistence. Per-field
// mutexes guard agent-local state; no lock is held across a provider
// call or a tool dispatch.
type Agent struct {
	provider   provider.Provider
	extensions *extension.Manager
	store      *config.Store

	permStore *permission.Store
	checker   *permission.Checker

	monitorMu sync.Mutex
	monitor   *monitor.Monitor

	routerMu sync.Mutex
	selector router.Selector

	frontendMu        sync.Mutex
	frontendResponses chan types.ToolResponseContent

	finalMu     sync.Mutex
	finalOutput *finalOutputState

	recipeMu sync.Mutex
	recipe   *types.Recipe

	tasksMu sync.Mutex
	tasks   map[string]subagentTask

	schedMu   sync.Mutex
	scheduler Scheduler

	modelMu   sync.Mutex
	lastModel string
}

// Option configures an Agent at construction.
type Option func(*Agent)

// WithToolMonitor enables the repetition monitor.
func WithToolMonitor(m *monitor.Monitor) Option {
	return func(a *Agent) { a.monitor = m }
}

// WithRouter enables tool-catalog narrowing.
func WithRouter(s router.Selector) Option {
	return func(a *Agent) { a.selector = s }
}

// WithPermissionStore overrides the process-wide permission store.
func WithPermissionStore(store *permission.Store) Option {
	return func(a *Agent) { a.permStore = store }
}

// WithRecipe attaches the active recipe: its instructions join the
// system prompt, its response schema configures the final-output tool,
// and its sub-recipes register as tools.
func WithRecipe(r *types.Recipe) Option {
	return func(a *Agent) {
		a.recipe = r
		if r != nil && r.Response != nil && r.Response.JSONSchema != nil {
			a.finalOutput = newFinalOutputState(r.Response.JSONSchema)
		}
	}
}

// WithScheduler injects the scheduler behind platform__manage_schedule.
func WithScheduler(s Scheduler) Option {
	return func(a *Agent) { a.scheduler = s }
}

// New creates an agent over a provider and extension manager.
func New(p provider.Provider, extensions *extension.Manager, store *config.Store, opts ...Option) *Agent {
	a := &Agent{
		provider:          p,
		extensions:        extensions,
		store:             store,
		permStore:         permission.GlobalStore(),
		checker:           permission.NewChecker(),
		frontendResponses: make(chan types.ToolResponseContent, 8),
		tasks:             make(map[string]subagentTask),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider returns the agent's provider.
func (a *Agent) Provider() provider.Provider { return a.provider }

// Extensions returns the extension manager.
func (a *Agent) Extensions() *extension.Manager { return a.extensions }

// PermissionChecker returns the interactive permission checker; the UI
// answers its prompts through Respond.
func (a *Agent) PermissionChecker() *permission.Checker { return a.checker }

// SubmitFrontendToolResponse delivers a frontend-executed tool result
// back into a waiting reply loop.
func (a *Agent) SubmitFrontendToolResponse(resp types.ToolResponseContent) {
	a.frontendResponses <- resp
}

// activeRecipe returns the attached recipe, if any.
func (a *Agent) activeRecipe() *types.Recipe {
	a.recipeMu.Lock()
	defer a.recipeMu.Unlock()
	return a.recipe
}
