package sessionlog

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/goosehq/goose/internal/logging"
	"github.com/goosehq/goose/pkg/types"
)

const describeSystemPrompt = `You are a session describer. You output ONLY a short description of the conversation. Nothing else.

Rules:
- A single line, four words or fewer
- No explanations, no punctuation at the end
- Keep exact: technical terms, numbers, filenames`

// Describer is the slice of the provider contract needed to summarize a
// session. provider.Provider satisfies it.
type Describer interface {
	Complete(ctx context.Context, system string, messages []types.Message, tools []types.Tool) (*types.Message, types.ProviderUsage, error)
}

// PersistMessagesWithScheduleID persists messages, deriving a short
// description from the first user message when the header has none and a
// provider is available. An existing schedule_id is preserved when the
// caller passes none.
func PersistMessagesWithScheduleID(path string, messages []types.Message, describer Describer, scheduleID string) error {
	meta, err := ReadMetadata(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		wd, _ := os.Getwd()
		meta = types.SessionMetadata{WorkingDir: wd}
	}

	if scheduleID != "" {
		meta.ScheduleID = scheduleID
	}

	if meta.Description == "" && describer != nil {
		if desc := deriveDescription(describer, messages); desc != "" {
			meta.Description = desc
		}
	}

	return Persist(path, meta, messages)
}

// deriveDescription asks the provider to summarize the first user
// message. Failures only cost the description.
func deriveDescription(describer Describer, messages []types.Message) string {
	var firstUser string
	for _, msg := range messages {
		if msg.Role != types.RoleUser {
			continue
		}
		for _, c := range msg.Content {
			if c.Kind == types.ContentText && c.Text != nil {
				firstUser = c.Text.Text
				break
			}
		}
		break
	}
	if firstUser == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	prompt := types.Message{
		Role:    types.RoleUser,
		Created: time.Now(),
		Content: []types.Content{types.NewTextContent("Describe this conversation:\n\n" + firstUser)},
	}

	reply, _, err := describer.Complete(ctx, describeSystemPrompt, []types.Message{prompt}, nil)
	if err != nil {
		logging.Debug().Err(err).Msg("session description generation failed")
		return ""
	}

	var text strings.Builder
	for _, c := range reply.Content {
		if c.Kind == types.ContentText && c.Text != nil {
			text.WriteString(c.Text.Text)
		}
	}

	desc := strings.TrimSpace(text.String())
	for _, line := range strings.Split(desc, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			desc = line
			break
		}
	}
	if len(desc) > 100 {
		desc = desc[:97] + "..."
	}
	return desc
}
