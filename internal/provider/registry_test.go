package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goosehq/goose/internal/config"
)

func TestRegistry_RegisterGet(t *testing.T) {
	r := NewRegistry()

	mock := &mockProvider{name: "mock", replies: []mockReply{textReply("x", 1)}}
	r.Register("mock", mock)

	got, err := r.Get("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock", got.Name())

	_, err = r.Get("absent")
	assert.Error(t, err)

	assert.ElementsMatch(t, []string{"mock"}, r.Names())
}

func TestFromConfig_UnknownProvider(t *testing.T) {
	store := config.NewStore(t.TempDir())
	t.Setenv("GOOSE_PROVIDER", "made-up")

	_, err := FromConfig(context.Background(), store)
	assert.ErrorContains(t, err, "unknown provider")
}

func TestFromConfig_AnthropicFromEnv(t *testing.T) {
	t.Setenv(config.DisableKeyringEnv, "1")
	store := config.NewStore(t.TempDir())
	t.Setenv("GOOSE_PROVIDER", "anthropic")
	t.Setenv("GOOSE_MODEL", "claude-3-5-haiku-20241022")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	p, err := FromConfig(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-20241022", p.Name())
}

func TestFromConfig_LeadWorkerPair(t *testing.T) {
	t.Setenv(config.DisableKeyringEnv, "1")
	store := config.NewStore(t.TempDir())
	t.Setenv("GOOSE_PROVIDER", "anthropic")
	t.Setenv("GOOSE_LEAD_MODEL", "claude-opus-4-20250514")
	t.Setenv("GOOSE_WORKER_MODEL", "claude-3-5-haiku-20241022")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	p, err := FromConfig(context.Background(), store)
	require.NoError(t, err)

	pair, ok := p.(*LeadWorkerProvider)
	require.True(t, ok, "expected a lead/worker pair")
	assert.Equal(t, "claude-opus-4-20250514", pair.Name())
}

func TestNewAnthropicProvider_RequiresKey(t *testing.T) {
	_, err := NewAnthropicProvider(context.Background(), &AnthropicConfig{})
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrAuth, pe.Kind)
}

func TestNewOpenAIProvider_BaseURLWithoutKey(t *testing.T) {
	// Local OpenAI-compatible servers need no key.
	p, err := NewOpenAIProvider(context.Background(), &OpenAIConfig{
		BaseURL: "http://127.0.0.1:11434/v1",
		Model:   "llama3",
	})
	require.NoError(t, err)
	assert.Equal(t, "llama3", p.Name())
}

func TestNewArkProvider_RequiresEndpoint(t *testing.T) {
	_, err := NewArkProvider(context.Background(), &ArkConfig{APIKey: "k"})
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrUsage, pe.Kind)
}
