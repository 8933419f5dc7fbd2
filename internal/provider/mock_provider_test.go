package provider

import (
	"context"
	"time"

	"github.com/goosehq/goose/pkg/types"
)

// mockProvider replays a scripted sequence of replies.
type mockProvider struct {
	name    string
	replies []mockReply
	calls   int
}

type mockReply struct {
	message *types.Message
	usage   types.Usage
	err     error
}

func textReply(text string, total int) mockReply {
	return mockReply{
		message: &types.Message{
			Role:    types.RoleAssistant,
			Created: time.Now(),
			Content: []types.Content{types.NewTextContent(text)},
		},
		usage: types.Usage{TotalTokens: total},
	}
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Complete(ctx context.Context, system string, messages []types.Message, tools []types.Tool) (*types.Message, types.ProviderUsage, error) {
	reply := m.replies[m.calls%len(m.replies)]
	m.calls++
	if reply.err != nil {
		return nil, types.ProviderUsage{Model: m.name}, reply.err
	}
	return reply.message, types.ProviderUsage{Model: m.name, Usage: reply.usage}, nil
}
