package sessionlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosehq/goose/pkg/types"
)

func userText(text string) types.Message {
	return types.Message{
		Role:    types.RoleUser,
		Created: time.Now().UTC().Truncate(time.Second),
		Content: []types.Content{types.NewTextContent(text)},
	}
}

func assistantText(text string) types.Message {
	return types.Message{
		Role:    types.RoleAssistant,
		Created: time.Now().UTC().Truncate(time.Second),
		Content: []types.Content{types.NewTextContent(text)},
	}
}

func TestPersist_ReadAfterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "20250101_120000.jsonl")
	meta := types.SessionMetadata{WorkingDir: "/tmp/project", Description: "say hi"}
	messages := []types.Message{userText("say hi"), assistantText("hello")}

	require.NoError(t, Persist(path, meta, messages))

	gotMeta, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/project", gotMeta.WorkingDir)
	assert.Equal(t, "say hi", gotMeta.Description)
	assert.Equal(t, 2, gotMeta.MessageCount)

	gotMessages, err := ReadMessages(path)
	require.NoError(t, err)
	require.Len(t, gotMessages, 2)
	assert.Equal(t, types.RoleUser, gotMessages[0].Role)
	assert.Equal(t, "hello", gotMessages[1].Content[0].Text.Text)
}

func TestPersist_MessageCountMatchesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	messages := []types.Message{userText("a"), assistantText("b"), userText("c")}

	// The caller's stale count is overwritten.
	require.NoError(t, Persist(path, types.SessionMetadata{MessageCount: 99}, messages))

	meta, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, 3, meta.MessageCount)
}

func TestReadMessages_TornTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	require.NoError(t, Persist(path, types.SessionMetadata{}, []types.Message{
		userText("first"), assistantText("second"),
	}))

	// Simulate a crash mid-append.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"role":"assistant","content":[{"ki`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	messages, err := ReadMessages(path)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	// Metadata is untouched by the torn tail.
	meta, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.MessageCount)
}

func TestReadMetadata_MissingFile(t *testing.T) {
	_, err := ReadMetadata(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.True(t, os.IsNotExist(err))
}

func TestUpdateMetadata_PreservesMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	require.NoError(t, Persist(path, types.SessionMetadata{}, []types.Message{userText("hi")}))

	meta, err := ReadMetadata(path)
	require.NoError(t, err)
	tokens := 5
	meta.TotalTokens = &tokens
	meta.AccumulatedTotalTokens = 5
	require.NoError(t, UpdateMetadata(path, meta))

	messages, err := ReadMessages(path)
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	got, err := ReadMetadata(path)
	require.NoError(t, err)
	require.NotNil(t, got.TotalTokens)
	assert.Equal(t, 5, *got.TotalTokens)
}

func TestListSessions_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	for _, name := range []string{"20250101_090000", "20250301_090000", "20250201_090000"} {
		path := filepath.Join(dir, "goose", "sessions", name+Extension)
		require.NoError(t, Persist(path, types.SessionMetadata{}, nil))
	}

	sessions, err := ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "20250301_090000", sessions[0].Name)
	assert.Equal(t, "20250101_090000", sessions[2].Name)
}

// fixedDescriber returns a canned description.
type fixedDescriber struct{ text string }

func (d fixedDescriber) Complete(ctx context.Context, system string, messages []types.Message, tools []types.Tool) (*types.Message, types.ProviderUsage, error) {
	msg := assistantText(d.text)
	return &msg, types.ProviderUsage{Model: "mock"}, nil
}

func TestPersistMessagesWithScheduleID_DerivesDescription(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.jsonl")
	messages := []types.Message{userText("summarize the quarterly report")}

	require.NoError(t, PersistMessagesWithScheduleID(path, messages, fixedDescriber{"Summarizing quarterly report"}, "job-1"))

	meta, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "Summarizing quarterly report", meta.Description)
	assert.Equal(t, "job-1", meta.ScheduleID)
	assert.Equal(t, 1, meta.MessageCount)

	// A later persist without a schedule id keeps the existing one, and
	// the existing description is not regenerated.
	messages = append(messages, assistantText("done"))
	require.NoError(t, PersistMessagesWithScheduleID(path, messages, fixedDescriber{"different"}, ""))

	meta, err = ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "Summarizing quarterly report", meta.Description)
	assert.Equal(t, "job-1", meta.ScheduleID)
	assert.Equal(t, 2, meta.MessageCount)
}

func TestResolve(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	path, err := Resolve(types.NameIdentifier("20250101_090000"))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.Contains(t, path, "20250101_090000.jsonl")

	path, err = Resolve(types.PathIdentifier("/tmp/custom.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.jsonl", path)

	_, err = Resolve(types.Identifier{})
	assert.Error(t, err)
}
