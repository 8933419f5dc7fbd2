package provider

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosehq/goose/pkg/types"
)

// TestAnthropicProvider_Live exercises the real API. Skipped unless
// ANTHROPIC_API_KEY is available (directly or via a repo-root .env).
func TestAnthropicProvider_Live(t *testing.T) {
	_ = godotenv.Load("../../.env")
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		t.Skip("ANTHROPIC_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	p, err := NewAnthropicProvider(ctx, &AnthropicConfig{
		APIKey: apiKey,
		Model:  "claude-3-5-haiku-20241022",
	})
	require.NoError(t, err)

	msg := types.Message{
		Role:    types.RoleUser,
		Created: time.Now(),
		Content: []types.Content{types.NewTextContent("Reply with exactly the word: pong")},
	}

	reply, usage, err := p.Complete(ctx, "You are a test responder.", []types.Message{msg}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, reply.Content)
	assert.Contains(t, reply.Content[0].Text.Text, "pong")
	assert.Greater(t, usage.Usage.TotalTokens, 0)
}
