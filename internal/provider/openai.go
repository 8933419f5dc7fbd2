package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/goosehq/goose/pkg/types"
)

// defaultOpenAIModel is used when no model is configured.
const defaultOpenAIModel = "gpt-4o"

// OpenAIProvider implements Provider for OpenAI and OpenAI-compatible
// endpoints (a BaseURL pointed at a local server works without a key).
type OpenAIProvider struct {
	chatModel model.ToolCallingChatModel
	config    *OpenAIConfig
}

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	// Azure configuration
	UseAzure   bool
	APIVersion string
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(ctx context.Context, config *OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" && config.BaseURL == "" {
		return nil, &Error{Kind: ErrAuth, Model: config.Model, Err: fmt.Errorf("openai api key not set")}
	}

	modelID := config.Model
	if modelID == "" {
		modelID = defaultOpenAIModel
	}
	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	cfg := &openai.ChatModelConfig{
		APIKey:              config.APIKey,
		Model:               modelID,
		MaxCompletionTokens: &maxTokens, // MaxCompletionTokens for GPT-5 compatibility
	}
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	if config.UseAzure {
		cfg.ByAzure = true
		cfg.APIVersion = config.APIVersion
		if cfg.APIVersion == "" {
			cfg.APIVersion = "2024-02-15-preview"
		}
	}

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
	}

	cfgCopy := *config
	cfgCopy.Model = modelID
	return &OpenAIProvider{chatModel: chatModel, config: &cfgCopy}, nil
}

// Name returns the active model name.
func (p *OpenAIProvider) Name() string { return p.config.Model }

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, system string, messages []types.Message, tools []types.Tool) (*types.Message, types.ProviderUsage, error) {
	return complete(ctx, p.chatModel, p.config.Model, system, messages, tools)
}

// Stream implements Streamer.
func (p *OpenAIProvider) Stream(ctx context.Context, system string, messages []types.Message, tools []types.Tool) (*Stream, error) {
	return stream(ctx, p.chatModel, p.config.Model, system, messages, tools)
}
