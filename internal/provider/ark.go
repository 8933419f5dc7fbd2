package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/goosehq/goose/pkg/types"
)

// ArkProvider implements Provider for Volcengine ARK endpoints.
type ArkProvider struct {
	chatModel model.ToolCallingChatModel
	config    *ArkConfig
}

// ArkConfig holds configuration for the ARK provider.
type ArkConfig struct {
	APIKey    string
	BaseURL   string
	Model     string // Endpoint ID on the ARK platform
	MaxTokens int
}

// NewArkProvider creates a new ARK provider.
func NewArkProvider(ctx context.Context, config *ArkConfig) (*ArkProvider, error) {
	if config.APIKey == "" {
		return nil, &Error{Kind: ErrAuth, Model: config.Model, Err: fmt.Errorf("ark api key not set")}
	}
	if config.Model == "" {
		return nil, &Error{Kind: ErrUsage, Err: fmt.Errorf("ark model endpoint not set")}
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	cfg := &ark.ChatModelConfig{
		APIKey:    config.APIKey,
		Model:     config.Model,
		MaxTokens: &maxTokens,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ARK model: %w", err)
	}

	return &ArkProvider{chatModel: chatModel, config: config}, nil
}

// Name returns the active model endpoint.
func (p *ArkProvider) Name() string { return p.config.Model }

// Complete implements Provider.
func (p *ArkProvider) Complete(ctx context.Context, system string, messages []types.Message, tools []types.Tool) (*types.Message, types.ProviderUsage, error) {
	return complete(ctx, p.chatModel, p.config.Model, system, messages, tools)
}

// Stream implements Streamer.
func (p *ArkProvider) Stream(ctx context.Context, system string, messages []types.Message, tools []types.Tool) (*Stream, error) {
	return stream(ctx, p.chatModel, p.config.Model, system, messages, tools)
}
