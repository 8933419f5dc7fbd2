package extension

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosehq/goose/internal/config"
	"github.com/goosehq/goose/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	t.Setenv(config.DisableKeyringEnv, "1")
	return NewManager(config.NewStore(t.TempDir()))
}

func addDeveloper(t *testing.T, m *Manager) {
	t.Helper()
	require.NoError(t, m.AddExtension(context.Background(), types.ExtensionConfig{
		Kind: types.ExtensionBuiltin,
		Name: "developer",
	}))
}

func awaitOutcome(t *testing.T, result ToolCallResult) CallOutcome {
	t.Helper()
	for range result.Notifications {
		// drain
	}
	select {
	case outcome := <-result.Result:
		return outcome
	case <-time.After(10 * time.Second):
		t.Fatal("tool call did not finish")
		return CallOutcome{}
	}
}

func TestManager_BuiltinCatalogIsPrefixed(t *testing.T) {
	m := newTestManager(t)
	addDeveloper(t, m)

	tools := m.Tools(context.Background())
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	assert.Contains(t, names, "developer__shell")
	assert.Contains(t, names, "developer__text_editor")
}

func TestManager_DispatchShell(t *testing.T) {
	m := newTestManager(t)
	addDeveloper(t, m)

	result := m.Dispatch(context.Background(), types.ToolCall{
		Name:      "developer__shell",
		Arguments: json.RawMessage(`{"command":"echo hi"}`),
	})

	outcome := awaitOutcome(t, result)
	require.Nil(t, outcome.Err)
	require.NotEmpty(t, outcome.Content)
	assert.Contains(t, outcome.Content[0].Text.Text, "hi")
}

func TestManager_DispatchFailedCommandIsToolError(t *testing.T) {
	m := newTestManager(t)
	addDeveloper(t, m)

	result := m.Dispatch(context.Background(), types.ToolCall{
		Name:      "developer__shell",
		Arguments: json.RawMessage(`{"command":"exit 3"}`),
	})

	outcome := awaitOutcome(t, result)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, types.ToolErrExecutionError, outcome.Err.Kind)
}

func TestManager_DispatchUnknownExtension(t *testing.T) {
	m := newTestManager(t)

	outcome := awaitOutcome(t, m.Dispatch(context.Background(), types.ToolCall{Name: "ghost__tool"}))
	require.NotNil(t, outcome.Err)
	assert.Equal(t, types.ToolErrNotFound, outcome.Err.Kind)

	outcome = awaitOutcome(t, m.Dispatch(context.Background(), types.ToolCall{Name: "unprefixed"}))
	require.NotNil(t, outcome.Err)
	assert.Equal(t, types.ToolErrNotFound, outcome.Err.Kind)
}

func TestManager_AddTwiceFails(t *testing.T) {
	m := newTestManager(t)
	addDeveloper(t, m)

	err := m.AddExtension(context.Background(), types.ExtensionConfig{
		Kind: types.ExtensionBuiltin,
		Name: "developer",
	})
	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
}

func TestManager_RemoveExtensionDropsTools(t *testing.T) {
	m := newTestManager(t)
	addDeveloper(t, m)

	require.NoError(t, m.RemoveExtension("developer"))
	assert.Empty(t, m.Tools(context.Background()))
	assert.Error(t, m.RemoveExtension("developer"))
}

func TestManager_FrontendTools(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.AddExtension(context.Background(), types.ExtensionConfig{
		Kind: types.ExtensionFrontend,
		Name: "browser",
		FrontendTools: []types.Tool{
			{Name: "screenshot", Description: "Take a screenshot", InputSchema: json.RawMessage(`{"type":"object"}`)},
		},
	}))

	frontend := m.FrontendTools()
	require.Len(t, frontend, 1)
	assert.Equal(t, "browser__screenshot", frontend[0].Name)
	assert.True(t, m.IsFrontendTool("browser__screenshot"))
	assert.False(t, m.IsFrontendTool("developer__shell"))

	// Dispatching a frontend tool through the manager is an error; the
	// agent routes these through its caller instead.
	outcome := awaitOutcome(t, m.Dispatch(context.Background(), types.ToolCall{Name: "browser__screenshot"}))
	require.NotNil(t, outcome.Err)
}

func TestManager_StdioMissingSecretIsSetupError(t *testing.T) {
	m := newTestManager(t)

	err := m.AddExtension(context.Background(), types.ExtensionConfig{
		Kind:    types.ExtensionStdio,
		Name:    "remote-thing",
		Cmd:     "true",
		EnvKeys: []string{"missing_token"},
	})
	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Contains(t, err.Error(), "missing_token")
}

func TestManager_UnknownBuiltin(t *testing.T) {
	m := newTestManager(t)

	err := m.AddExtension(context.Background(), types.ExtensionConfig{
		Kind: types.ExtensionBuiltin,
		Name: "no-such-builtin",
	})
	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
}

func TestManager_SearchAvailable(t *testing.T) {
	t.Setenv(config.DisableKeyringEnv, "1")
	store := config.NewStore(t.TempDir())
	require.NoError(t, store.Set("extensions", map[string]ConfiguredExtension{
		"jira": {Enabled: false, Config: types.ExtensionConfig{Kind: types.ExtensionStdio, Cmd: "jira-mcp"}},
	}))

	m := NewManager(store)
	addDeveloper(t, m)

	available := m.SearchAvailable(store)
	names := make([]string, len(available))
	for i, cfg := range available {
		names[i] = cfg.Name
	}
	assert.Contains(t, names, "jira")
	assert.Contains(t, names, "fetch")
	assert.NotContains(t, names, "developer", "running extensions are not 'available'")
}

func TestManager_ReadResourceBadURI(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ReadResource(context.Background(), "https://not-an-ext-uri")
	assert.Error(t, err)
	_, err = m.ReadResource(context.Background(), "ext://missing/thing")
	assert.Error(t, err)
}

func TestTextEditor_WriteViewReplace(t *testing.T) {
	m := newTestManager(t)
	addDeveloper(t, m)
	path := t.TempDir() + "/note.txt"

	write := func(args string) CallOutcome {
		return awaitOutcome(t, m.Dispatch(context.Background(), types.ToolCall{
			Name:      "developer__text_editor",
			Arguments: json.RawMessage(args),
		}))
	}

	outcome := write(`{"command":"write","path":"` + path + `","file_text":"hello world\n"}`)
	require.Nil(t, outcome.Err)

	outcome = write(`{"command":"str_replace","path":"` + path + `","old_str":"world","new_str":"goose"}`)
	require.Nil(t, outcome.Err)

	outcome = write(`{"command":"view","path":"` + path + `"}`)
	require.Nil(t, outcome.Err)
	assert.Contains(t, outcome.Content[0].Text.Text, "hello goose")

	outcome = write(`{"command":"str_replace","path":"` + path + `","old_str":"absent","new_str":"x"}`)
	require.NotNil(t, outcome.Err)
}
