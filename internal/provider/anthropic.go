package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/goosehq/goose/pkg/types"
)

// defaultAnthropicModel is used when no model is configured.
const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicProvider implements Provider for Anthropic Claude models.
type AnthropicProvider struct {
	chatModel model.ToolCallingChatModel
	config    *AnthropicConfig
}

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	// Extended thinking support
	Thinking *claude.Thinking

	// Bedrock configuration
	UseBedrock bool
	Region     string
	Profile    string
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(ctx context.Context, config *AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" && !config.UseBedrock {
		return nil, &Error{Kind: ErrAuth, Model: config.Model, Err: fmt.Errorf("anthropic api key not set")}
	}

	modelID := config.Model
	if modelID == "" {
		modelID = defaultAnthropicModel
	}
	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	var chatModel model.ToolCallingChatModel
	var err error

	if config.UseBedrock {
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			ByBedrock: true,
			Region:    config.Region,
			Profile:   config.Profile,
			Model:     "anthropic." + modelID + "-v1:0",
			MaxTokens: maxTokens,
			Thinking:  config.Thinking,
		})
	} else {
		cfg := &claude.Config{
			APIKey:    config.APIKey,
			Model:     modelID,
			MaxTokens: maxTokens,
			Thinking:  config.Thinking,
		}
		if config.BaseURL != "" {
			cfg.BaseURL = &config.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Claude model: %w", err)
	}

	cfgCopy := *config
	cfgCopy.Model = modelID
	return &AnthropicProvider{chatModel: chatModel, config: &cfgCopy}, nil
}

// Name returns the active model name.
func (p *AnthropicProvider) Name() string { return p.config.Model }

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, system string, messages []types.Message, tools []types.Tool) (*types.Message, types.ProviderUsage, error) {
	return complete(ctx, p.chatModel, p.config.Model, system, messages, tools)
}

// Stream implements Streamer.
func (p *AnthropicProvider) Stream(ctx context.Context, system string, messages []types.Message, tools []types.Tool) (*Stream, error) {
	return stream(ctx, p.chatModel, p.config.Model, system, messages, tools)
}
