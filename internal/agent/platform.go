package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goosehq/goose/internal/extension"
	"github.com/goosehq/goose/pkg/types"
)

// Platform and recipe-scoped tool names. These are recognized by fixed
// name and never forwarded to an extension client.
const (
	ManageExtensionsToolName = "platform__manage_extensions"
	ManageScheduleToolName   = "platform__manage_schedule"
	ReadResourceToolName     = "platform__read_resource"
	ListResourcesToolName    = "platform__list_resources"
	SearchExtensionsToolName = "platform__search_available_extensions"
	CreateTaskToolName       = "dynamic_task__create_task"
	ExecuteTaskToolName      = "subagent__execute_task"

	subRecipePrefix = "subrecipe__"
)

// platformTools returns the always-present platform tool descriptors.
func (a *Agent) platformTools() []types.Tool {
	tools := []types.Tool{
		{
			Name:        ManageExtensionsToolName,
			Description: "Enable or disable an extension at runtime. Enabled extensions contribute tools to this session.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"action": {"type": "string", "enum": ["enable", "disable"]},
					"extension_name": {"type": "string"}
				},
				"required": ["action", "extension_name"]
			}`),
		},
		{
			Name:        ListResourcesToolName,
			Description: "List resources exposed by the running extensions.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
			Annotations: &types.ToolAnnotations{ReadOnlyHint: true},
		},
		{
			Name:        ReadResourceToolName,
			Description: "Read one extension resource by its URI.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"uri": {"type": "string"}},
				"required": ["uri"]
			}`),
			Annotations: &types.ToolAnnotations{ReadOnlyHint: true},
		},
		{
			Name:        SearchExtensionsToolName,
			Description: "List extensions that are configured but not currently enabled.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
			Annotations: &types.ToolAnnotations{ReadOnlyHint: true},
		},
		{
			Name:        CreateTaskToolName,
			Description: "Record a task for later execution by subagent__execute_task.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"instructions": {"type": "string", "description": "What the subagent should do"}
				},
				"required": ["instructions"]
			}`),
			Annotations: &types.ToolAnnotations{ReadOnlyHint: true},
		},
		{
			Name:        ExecuteTaskToolName,
			Description: "Run recorded tasks as subagents, sequentially or in parallel, streaming their progress.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"task_ids": {"type": "array", "items": {"type": "string"}},
					"execution_mode": {"type": "string", "enum": ["sequential", "parallel"]}
				},
				"required": ["task_ids"]
			}`),
		},
	}

	a.schedMu.Lock()
	hasScheduler := a.scheduler != nil
	a.schedMu.Unlock()
	if hasScheduler {
		tools = append(tools, types.Tool{
			Name:        ManageScheduleToolName,
			Description: "Manage scheduled recipe jobs: list, add, remove, pause, unpause, run_now, kill, sessions.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"action": {"type": "string", "enum": ["list", "add", "remove", "pause", "unpause", "run_now", "kill", "sessions"]},
					"job_id": {"type": "string"},
					"recipe_path": {"type": "string"},
					"cron": {"type": "string"},
					"limit": {"type": "integer"}
				},
				"required": ["action"]
			}`),
		})
	}

	return tools
}

// dispatchPlatform short-circuits platform and recipe-scoped tool names.
// Returns handled=false for everything that belongs to an extension.
func (a *Agent) dispatchPlatform(ctx context.Context, state *replyState, req types.ToolRequestContent) (handled bool, content []types.Content, toolErr *types.ToolError, toolsUpdated bool) {
	name := req.Call.Name
	args := req.Call.Arguments

	fail := func(kind types.ToolErrorKind, format string, v ...any) (bool, []types.Content, *types.ToolError, bool) {
		return true, nil, &types.ToolError{Kind: kind, Message: fmt.Sprintf(format, v...)}, false
	}
	ok := func(text string) (bool, []types.Content, *types.ToolError, bool) {
		return true, []types.Content{types.NewTextContent(text)}, nil, false
	}

	switch {
	case name == ManageExtensionsToolName:
		var input struct {
			Action        string `json:"action"`
			ExtensionName string `json:"extension_name"`
		}
		if err := json.Unmarshal(args, &input); err != nil {
			return fail(types.ToolErrInvalidParameters, "invalid input: %v", err)
		}
		switch input.Action {
		case "enable":
			cfg, err := a.resolveExtensionConfig(input.ExtensionName)
			if err != nil {
				return fail(types.ToolErrExecutionError, "%v", err)
			}
			if err := a.extensions.AddExtension(ctx, cfg); err != nil {
				return fail(types.ToolErrExecutionError, "%v", err)
			}
			handled, content, toolErr, _ = ok(fmt.Sprintf("Extension %s enabled", input.ExtensionName))
			return handled, content, toolErr, true
		case "disable":
			if err := a.extensions.RemoveExtension(input.ExtensionName); err != nil {
				return fail(types.ToolErrExecutionError, "%v", err)
			}
			handled, content, toolErr, _ = ok(fmt.Sprintf("Extension %s disabled", input.ExtensionName))
			return handled, content, toolErr, true
		default:
			return fail(types.ToolErrInvalidParameters, "unknown action: %s", input.Action)
		}

	case name == ListResourcesToolName:
		resources, err := a.extensions.ListResources(ctx)
		if err != nil {
			return fail(types.ToolErrExecutionError, "%v", err)
		}
		listing, _ := json.MarshalIndent(resources, "", "  ")
		return ok(string(listing))

	case name == ReadResourceToolName:
		var input struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(args, &input); err != nil || input.URI == "" {
			return fail(types.ToolErrInvalidParameters, "uri is required")
		}
		text, err := a.extensions.ReadResource(ctx, input.URI)
		if err != nil {
			return fail(types.ToolErrExecutionError, "%v", err)
		}
		return ok(text)

	case name == SearchExtensionsToolName:
		available := a.extensions.SearchAvailable(a.store)
		var sb strings.Builder
		for _, cfg := range available {
			fmt.Fprintf(&sb, "- %s (%s)\n", cfg.Name, cfg.Kind)
		}
		if sb.Len() == 0 {
			return ok("No disabled extensions are configured.")
		}
		return ok(sb.String())

	case name == CreateTaskToolName:
		var input struct {
			Instructions string `json:"instructions"`
		}
		if err := json.Unmarshal(args, &input); err != nil || input.Instructions == "" {
			return fail(types.ToolErrInvalidParameters, "instructions are required")
		}
		id := a.createTask(input.Instructions)
		return ok(fmt.Sprintf("Task %s recorded", id))

	case name == ExecuteTaskToolName:
		var input struct {
			TaskIDs       []string `json:"task_ids"`
			ExecutionMode string   `json:"execution_mode"`
		}
		if err := json.Unmarshal(args, &input); err != nil || len(input.TaskIDs) == 0 {
			return fail(types.ToolErrInvalidParameters, "task_ids are required")
		}
		notify := func(msg extension.JSONRPCMessage) {
			state.yield(ctx, notificationEvent(req.ID, msg))
		}
		results, err := a.executeTasks(ctx, input.TaskIDs, input.ExecutionMode == "parallel", notify)
		if err != nil {
			return fail(types.ToolErrExecutionError, "%v", err)
		}
		return ok(results)

	case name == ManageScheduleToolName:
		return a.dispatchManageSchedule(args)

	case name == FinalOutputToolName:
		final := a.finalOutputState()
		if final == nil {
			return fail(types.ToolErrNotFound, "no final output is configured for this session")
		}
		final.store(args)
		return ok("Final output recorded")

	case strings.HasPrefix(name, subRecipePrefix):
		return a.dispatchSubRecipe(ctx, state, req)
	}

	return false, nil, nil, false
}

// resolveExtensionConfig finds the config for an extension name: the
// configured extensions map first, then the builtin registry.
func (a *Agent) resolveExtensionConfig(name string) (types.ExtensionConfig, error) {
	if a.store != nil {
		var configured map[string]extension.ConfiguredExtension
		if err := a.store.Get("extensions", &configured); err == nil {
			if entry, ok := configured[name]; ok {
				cfg := entry.Config
				cfg.Name = name
				return cfg, nil
			}
		}
	}
	for _, builtin := range extension.BuiltinNames() {
		if builtin == name {
			return types.ExtensionConfig{Kind: types.ExtensionBuiltin, Name: name}, nil
		}
	}
	return types.ExtensionConfig{}, fmt.Errorf("no configured extension named %q", name)
}

// dispatchManageSchedule surfaces the scheduler contract as a tool.
func (a *Agent) dispatchManageSchedule(args json.RawMessage) (bool, []types.Content, *types.ToolError, bool) {
	a.schedMu.Lock()
	sched := a.scheduler
	a.schedMu.Unlock()

	fail := func(format string, v ...any) (bool, []types.Content, *types.ToolError, bool) {
		return true, nil, &types.ToolError{Kind: types.ToolErrExecutionError, Message: fmt.Sprintf(format, v...)}, false
	}
	ok := func(text string) (bool, []types.Content, *types.ToolError, bool) {
		return true, []types.Content{types.NewTextContent(text)}, nil, false
	}

	if sched == nil {
		return fail("no scheduler is attached to this session")
	}

	var input struct {
		Action     string `json:"action"`
		JobID      string `json:"job_id"`
		RecipePath string `json:"recipe_path"`
		Cron       string `json:"cron"`
		Limit      int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return true, nil, &types.ToolError{Kind: types.ToolErrInvalidParameters, Message: err.Error()}, false
	}

	switch input.Action {
	case "list":
		jobs, err := sched.List()
		if err != nil {
			return fail("%v", err)
		}
		listing, _ := json.MarshalIndent(jobs, "", "  ")
		return ok(string(listing))
	case "add":
		if err := sched.AddFromPath(input.JobID, input.RecipePath, input.Cron); err != nil {
			return fail("%v", err)
		}
		return ok(fmt.Sprintf("Job %s scheduled with cron %q", input.JobID, input.Cron))
	case "remove":
		if err := sched.Remove(input.JobID); err != nil {
			return fail("%v", err)
		}
		return ok(fmt.Sprintf("Job %s removed", input.JobID))
	case "pause":
		if err := sched.Pause(input.JobID); err != nil {
			return fail("%v", err)
		}
		return ok(fmt.Sprintf("Job %s paused", input.JobID))
	case "unpause":
		if err := sched.Unpause(input.JobID); err != nil {
			return fail("%v", err)
		}
		return ok(fmt.Sprintf("Job %s unpaused", input.JobID))
	case "run_now":
		sessionID, err := sched.RunNow(input.JobID)
		if err != nil {
			return fail("%v", err)
		}
		return ok(fmt.Sprintf("Job %s started as session %s", input.JobID, sessionID))
	case "kill":
		if err := sched.KillRunning(input.JobID); err != nil {
			return fail("%v", err)
		}
		return ok(fmt.Sprintf("Job %s killed", input.JobID))
	case "sessions":
		limit := input.Limit
		if limit <= 0 {
			limit = 10
		}
		sessions, err := sched.Sessions(input.JobID, limit)
		if err != nil {
			return fail("%v", err)
		}
		listing, _ := json.MarshalIndent(sessions, "", "  ")
		return ok(string(listing))
	default:
		return true, nil, &types.ToolError{Kind: types.ToolErrInvalidParameters, Message: "unknown action: " + input.Action}, false
	}
}
