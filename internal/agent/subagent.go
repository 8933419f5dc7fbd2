package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/goosehq/goose/internal/extension"
	"github.com/goosehq/goose/internal/recipe"
	"github.com/goosehq/goose/pkg/types"
)

// subagentMaxTurns bounds an inner agent run.
const subagentMaxTurns = 25

// subagentTask is one recorded entry of the dynamic task table.
type subagentTask struct {
	ID           string
	Instructions string
	Created      time.Time
}

// createTask records a task and returns its id.
func (a *Agent) createTask(instructions string) string {
	id := ulid.Make().String()

	a.tasksMu.Lock()
	defer a.tasksMu.Unlock()
	a.tasks[id] = subagentTask{ID: id, Instructions: instructions, Created: time.Now()}
	return id
}

// executeTasks runs recorded tasks through inner agents, sequentially or
// in parallel, reporting progress through notify. The outer cancellation
// token flows into every inner run.
func (a *Agent) executeTasks(ctx context.Context, taskIDs []string, parallel bool, notify func(extension.JSONRPCMessage)) (string, error) {
	tasks := make([]subagentTask, 0, len(taskIDs))
	a.tasksMu.Lock()
	for _, id := range taskIDs {
		task, ok := a.tasks[id]
		if !ok {
			a.tasksMu.Unlock()
			return "", fmt.Errorf("unknown task: %s", id)
		}
		tasks = append(tasks, task)
	}
	a.tasksMu.Unlock()

	results := make([]string, len(tasks))

	runOne := func(i int, task subagentTask) {
		notify(subagentNotification(task.ID, fmt.Sprintf("starting: %s", truncate(task.Instructions, 80))))
		output, err := a.runSubagent(ctx, task.Instructions, task.ID, notify)
		if err != nil {
			results[i] = fmt.Sprintf("Task %s failed: %v", task.ID, err)
		} else {
			results[i] = fmt.Sprintf("Task %s:\n%s", task.ID, output)
		}
		notify(subagentNotification(task.ID, "finished"))
	}

	if parallel {
		var wg sync.WaitGroup
		for i, task := range tasks {
			wg.Add(1)
			go func(i int, task subagentTask) {
				defer wg.Done()
				runOne(i, task)
			}(i, task)
		}
		wg.Wait()
	} else {
		for i, task := range tasks {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			runOne(i, task)
		}
	}

	// Executed tasks leave the table.
	a.tasksMu.Lock()
	for _, task := range tasks {
		delete(a.tasks, task.ID)
	}
	a.tasksMu.Unlock()

	return strings.Join(results, "\n\n"), nil
}

// runSubagent drives an inner reply loop for one task and returns its
// final text. The inner agent shares the provider and extension set but
// has its own loop state, runs in auto mode, and writes no session file.
func (a *Agent) runSubagent(ctx context.Context, instructions, taskID string, notify func(extension.JSONRPCMessage)) (string, error) {
	inner := New(a.provider, a.extensions, a.store,
		WithPermissionStore(a.permStore),
	)

	events, err := inner.Reply(ctx, []types.Message{{
		Role:    types.RoleUser,
		Created: time.Now(),
		Content: []types.Content{types.NewTextContent(instructions)},
	}}, &SessionConfig{
		ExecutionMode: types.ExecutionForeground,
		MaxTurns:      subagentMaxTurns,
	})
	if err != nil {
		return "", err
	}

	var lastText string
	for ev := range events {
		switch ev.Kind {
		case EventMessage:
			if ev.Message.Role != types.RoleAssistant {
				continue
			}
			for _, c := range ev.Message.Content {
				if c.Kind == types.ContentText && c.Text != nil {
					lastText = c.Text.Text
					notify(subagentNotification(taskID, truncate(c.Text.Text, 160)))
				}
			}
		case EventNotification:
			notify(ev.Notification.Message)
		}
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return lastText, nil
}

// subagentNotification builds a notifications/message frame tagged with
// the subagent's id.
func subagentNotification(taskID, text string) extension.JSONRPCMessage {
	params, _ := json.Marshal(extension.MessageNotification{
		Level:      "info",
		Data:       text,
		SubagentID: taskID,
	})
	return extension.JSONRPCMessage{
		JSONRPC: "2.0",
		Method:  extension.NotificationMessageMethod,
		Params:  params,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// subRecipeTool renders a sub-recipe as a callable tool.
func subRecipeTool(sub types.SubRecipe) types.Tool {
	description := sub.Description
	if description == "" {
		description = fmt.Sprintf("Run the %s sub-recipe", sub.Name)
	}
	return types.Tool{
		Name:        subRecipePrefix + sub.Name,
		Description: description,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"parameters": {"type": "object", "description": "Parameter values for the sub-recipe", "additionalProperties": {"type": "string"}}
			}
		}`),
	}
}

// dispatchSubRecipe loads, renders, and runs a registered sub-recipe as
// an inner agent, returning its final text.
func (a *Agent) dispatchSubRecipe(ctx context.Context, state *replyState, req types.ToolRequestContent) (bool, []types.Content, *types.ToolError, bool) {
	name := strings.TrimPrefix(req.Call.Name, subRecipePrefix)

	active := a.activeRecipe()
	if active == nil {
		return true, nil, &types.ToolError{Kind: types.ToolErrNotFound, Message: "no recipe is active"}, false
	}

	var sub *types.SubRecipe
	for i := range active.SubRecipes {
		if active.SubRecipes[i].Name == name {
			sub = &active.SubRecipes[i]
			break
		}
	}
	if sub == nil {
		return true, nil, &types.ToolError{Kind: types.ToolErrNotFound, Message: "unknown sub-recipe: " + name}, false
	}

	loaded, err := recipe.Load(sub.Path)
	if err != nil {
		return true, nil, &types.ToolError{Kind: types.ToolErrExecutionError, Message: err.Error()}, false
	}

	var input struct {
		Parameters map[string]string `json:"parameters"`
	}
	_ = json.Unmarshal(req.Call.Arguments, &input)

	values := make(map[string]string, len(sub.Values)+len(input.Parameters))
	for k, v := range sub.Values {
		values[k] = v
	}
	for k, v := range input.Parameters {
		values[k] = v
	}

	rendered, err := recipe.Render(loaded, values)
	if err != nil {
		return true, nil, &types.ToolError{Kind: types.ToolErrExecutionError, Message: err.Error()}, false
	}

	prompt := rendered.Prompt
	if prompt == "" {
		prompt = rendered.Instructions
	}

	notify := func(msg extension.JSONRPCMessage) {
		state.yield(ctx, notificationEvent(req.ID, msg))
	}
	output, err := a.runSubagent(ctx, prompt, subRecipePrefix+name, notify)
	if err != nil {
		return true, nil, &types.ToolError{Kind: types.ToolErrExecutionError, Message: err.Error()}, false
	}
	return true, []types.Content{types.NewTextContent(output)}, nil, false
}
