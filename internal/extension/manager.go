package extension

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goosehq/goose/internal/config"
	"github.com/goosehq/goose/internal/event"
	"github.com/goosehq/goose/internal/logging"
	"github.com/goosehq/goose/internal/permission"
	"github.com/goosehq/goose/pkg/types"
)

// SetupError is returned when an extension fails to start.
type SetupError struct {
	Name string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("failed to set up extension %s: %v", e.Name, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// handle owns one running client and its config.
type handle struct {
	config types.ExtensionConfig
	client client // nil for frontend extensions

	frontendTools []types.Tool
	instructions  string
}

// Manager owns the running extension clients. Dispatch takes the read
// lock so concurrent tool calls interleave; add and remove take the
// write lock.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*handle

	secrets *config.Store
}

// NewManager creates an extension manager resolving secrets from store.
func NewManager(store *config.Store) *Manager {
	return &Manager{
		clients: make(map[string]*handle),
		secrets: store,
	}
}

// AddExtension starts a client for the config and registers it. Starting
// an already-registered name is an error; remove it first.
func (m *Manager) AddExtension(ctx context.Context, cfg types.ExtensionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[cfg.Name]; ok {
		return &SetupError{Name: cfg.Name, Err: fmt.Errorf("extension already running")}
	}

	h := &handle{config: cfg}
	timeout := time.Duration(0)
	if cfg.Timeout != nil {
		timeout = time.Duration(*cfg.Timeout) * time.Millisecond
	}

	switch cfg.Kind {
	case types.ExtensionBuiltin:
		builtin, err := newBuiltin(cfg.Name)
		if err != nil {
			return &SetupError{Name: cfg.Name, Err: err}
		}
		h.client = &builtinClient{builtin: builtin, timeout: timeout}
		h.instructions = builtin.Instructions

	case types.ExtensionStdio:
		env, err := m.resolveEnv(cfg)
		if err != nil {
			return &SetupError{Name: cfg.Name, Err: err}
		}
		c, err := newStdioClient(ctx, cfg.Cmd, cfg.Args, env, timeout)
		if err != nil {
			return &SetupError{Name: cfg.Name, Err: err}
		}
		h.client = c
		h.instructions = c.instructions()

	case types.ExtensionSSE:
		c, err := newSSEClient(ctx, cfg.URI, timeout)
		if err != nil {
			return &SetupError{Name: cfg.Name, Err: err}
		}
		h.client = c

	case types.ExtensionFrontend:
		h.frontendTools = cfg.FrontendTools
		h.instructions = cfg.Instructions

	default:
		return &SetupError{Name: cfg.Name, Err: fmt.Errorf("unknown extension kind: %s", cfg.Kind)}
	}

	m.clients[cfg.Name] = h

	toolCount := len(h.frontendTools)
	if h.client != nil {
		if tools, err := h.client.tools(ctx); err == nil {
			toolCount = len(tools)
		}
	}
	event.Publish(event.Event{
		Type: event.ExtensionStarted,
		Data: event.ExtensionChangedData{Name: cfg.Name, ToolCount: toolCount},
	})
	return nil
}

// resolveEnv merges the inline env map with secrets named by env_keys.
func (m *Manager) resolveEnv(cfg types.ExtensionConfig) (map[string]string, error) {
	env := make(map[string]string, len(cfg.Envs)+len(cfg.EnvKeys))
	for k, v := range cfg.Envs {
		env[k] = v
	}
	for _, key := range cfg.EnvKeys {
		if m.secrets == nil {
			return nil, fmt.Errorf("no secret store to resolve %s", key)
		}
		value, err := m.secrets.GetSecret(key)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve secret %s: %w", key, err)
		}
		env[strings.ToUpper(key)] = value
	}
	return env, nil
}

// RemoveExtension stops the client and drops its tools.
func (m *Manager) RemoveExtension(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.clients[name]
	if !ok {
		return fmt.Errorf("extension not found: %s", name)
	}
	if h.client != nil {
		if err := h.client.close(); err != nil {
			logging.Warn().Str("extension", name).Err(err).Msg("extension shutdown reported an error")
		}
	}
	delete(m.clients, name)

	event.Publish(event.Event{
		Type: event.ExtensionStopped,
		Data: event.ExtensionChangedData{Name: name},
	})
	return nil
}

// ActiveNames lists the running extensions, sorted.
func (m *Manager) ActiveNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsActive reports whether the named extension is running.
func (m *Manager) IsActive(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.clients[name]
	return ok
}

// Tools returns the agent-visible catalog: every client's tools with
// names rewritten to "extension__tool".
func (m *Manager) Tools(ctx context.Context) []types.Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Tool
	for name, h := range m.clients {
		if h.client == nil {
			continue // frontend tools are catalogued separately
		}
		tools, err := h.client.tools(ctx)
		if err != nil {
			logging.Warn().Str("extension", name).Err(err).Msg("failed to list extension tools")
			continue
		}
		for _, tool := range tools {
			prefixed := tool
			prefixed.Name = permission.JoinToolName(name, tool.Name)
			out = append(out, prefixed)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FrontendTools returns every frontend-delegated tool, prefixed.
func (m *Manager) FrontendTools() []types.Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Tool
	for name, h := range m.clients {
		for _, tool := range h.frontendTools {
			prefixed := tool
			prefixed.Name = permission.JoinToolName(name, tool.Name)
			out = append(out, prefixed)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsFrontendTool reports whether a prefixed name belongs to a frontend
// extension.
func (m *Manager) IsFrontendTool(name string) bool {
	extName, bare := permission.SplitToolName(name)

	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.clients[extName]
	if !ok {
		return false
	}
	for _, tool := range h.frontendTools {
		if tool.Name == bare {
			return true
		}
	}
	return false
}

// Instructions concatenates the running extensions' instruction blocks
// for the system prompt.
func (m *Manager) Instructions() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		if inst := m.clients[name].instructions; inst != "" {
			sb.WriteString(fmt.Sprintf("## %s\n%s\n\n", name, inst))
		}
	}
	return strings.TrimSpace(sb.String())
}

// Dispatch routes a prefixed tool call to its owning client and returns
// the in-flight call. Routing failures come back as an already-failed
// result rather than an error; the agent never crashes on a bad call.
func (m *Manager) Dispatch(ctx context.Context, call types.ToolCall) ToolCallResult {
	extName, bare := permission.SplitToolName(call.Name)
	if extName == "" {
		return errorResult(types.ToolErrNotFound, "tool name %q has no extension prefix", call.Name)
	}

	m.mu.RLock()
	h, ok := m.clients[extName]
	m.mu.RUnlock()

	if !ok {
		return errorResult(types.ToolErrNotFound, "no extension named %q for tool %q", extName, call.Name)
	}
	if h.client == nil {
		return errorResult(types.ToolErrExecutionError, "tool %q is delegated to the frontend", call.Name)
	}

	return h.client.call(ctx, bare, call.Arguments)
}

// ListResources aggregates resources across every running client,
// prefixing URIs with the extension name.
func (m *Manager) ListResources(ctx context.Context) ([]Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Resource
	for name, h := range m.clients {
		if h.client == nil {
			continue
		}
		resources, err := h.client.listResources(ctx)
		if err != nil {
			continue // servers without resource support are fine
		}
		for _, r := range resources {
			r.URI = fmt.Sprintf("ext://%s/%s", name, r.URI)
			out = append(out, r)
		}
	}
	return out, nil
}

// ReadResource reads one resource by its prefixed URI.
func (m *Manager) ReadResource(ctx context.Context, uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "ext://")
	if !ok {
		return "", fmt.Errorf("invalid resource URI: %s", uri)
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid resource URI format: %s", uri)
	}

	m.mu.RLock()
	h, ok := m.clients[parts[0]]
	m.mu.RUnlock()
	if !ok || h.client == nil {
		return "", fmt.Errorf("extension not found: %s", parts[0])
	}
	return h.client.readResource(ctx, parts[1])
}

// Close stops every client. Best effort; used at process exit.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, h := range m.clients {
		if h.client != nil {
			_ = h.client.close()
		}
		delete(m.clients, name)
	}
}

// ConfiguredExtension is one value of the "extensions" config key, a map
// of extension name to its config plus an enabled flag.
type ConfiguredExtension struct {
	Enabled bool                  `json:"enabled"`
	Config  types.ExtensionConfig `json:"config"`
}

// SearchAvailable lists extensions that are configured but not running:
// every config-store entry that is not running, whatever its enabled
// flag, plus unstarted builtins.
func (m *Manager) SearchAvailable(store *config.Store) []types.ExtensionConfig {
	var out []types.ExtensionConfig

	var configured map[string]ConfiguredExtension
	if err := store.Get("extensions", &configured); err == nil {
		for name, entry := range configured {
			if m.IsActive(name) {
				continue
			}
			cfg := entry.Config
			cfg.Name = name
			out = append(out, cfg)
		}
	}

	for _, name := range BuiltinNames() {
		if m.IsActive(name) {
			continue
		}
		already := false
		for _, cfg := range out {
			if cfg.Name == name {
				already = true
				break
			}
		}
		if !already {
			out = append(out, types.ExtensionConfig{Kind: types.ExtensionBuiltin, Name: name})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MarshalArgsForPrompt pretty-prints call arguments for permission
// prompts.
func MarshalArgsForPrompt(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return string(args)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(args)
	}
	return string(pretty)
}
