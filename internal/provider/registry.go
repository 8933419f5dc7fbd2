package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/goosehq/goose/internal/config"
)

// Registry manages constructed providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under a name.
func (r *Registry) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", name)
	}
	return provider, nil
}

// Names lists the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Config keys consulted when constructing the session provider.
const (
	ProviderKey    = "goose_provider"
	ModelKey       = "goose_model"
	LeadModelKey   = "goose_lead_model"
	WorkerModelKey = "goose_worker_model"
)

// FromConfig constructs the provider selected by the config store
// (GOOSE_PROVIDER / GOOSE_MODEL environment variables or their config
// file equivalents). When both a lead and worker model are configured a
// LeadWorkerProvider pair is returned.
func FromConfig(ctx context.Context, store *config.Store) (Provider, error) {
	name := store.GetStringOr(ProviderKey, "anthropic")
	model := store.GetStringOr(ModelKey, "")

	lead := store.GetStringOr(LeadModelKey, "")
	worker := store.GetStringOr(WorkerModelKey, "")
	if lead != "" && worker != "" {
		leadProvider, err := newProvider(ctx, store, name, lead)
		if err != nil {
			return nil, err
		}
		workerProvider, err := newProvider(ctx, store, name, worker)
		if err != nil {
			return nil, err
		}
		return NewLeadWorker(leadProvider, workerProvider), nil
	}

	return newProvider(ctx, store, name, model)
}

// FromConfigWithModel constructs a specific provider/model pair,
// resolving credentials from the store. Recipe settings use this to
// override the global selection.
func FromConfigWithModel(ctx context.Context, store *config.Store, name, model string) (Provider, error) {
	if name == "" {
		name = store.GetStringOr(ProviderKey, "anthropic")
	}
	return newProvider(ctx, store, name, model)
}

// newProvider builds one concrete provider, resolving its API key from
// the secret store.
func newProvider(ctx context.Context, store *config.Store, name, model string) (Provider, error) {
	switch name {
	case "anthropic":
		apiKey, _ := store.GetSecret("anthropic_api_key")
		return NewAnthropicProvider(ctx, &AnthropicConfig{
			APIKey:  apiKey,
			BaseURL: store.GetStringOr("anthropic_host", ""),
			Model:   model,
		})
	case "openai":
		apiKey, _ := store.GetSecret("openai_api_key")
		return NewOpenAIProvider(ctx, &OpenAIConfig{
			APIKey:  apiKey,
			BaseURL: store.GetStringOr("openai_host", ""),
			Model:   model,
		})
	case "ark":
		apiKey, _ := store.GetSecret("ark_api_key")
		return NewArkProvider(ctx, &ArkConfig{
			APIKey:  apiKey,
			BaseURL: store.GetStringOr("ark_host", ""),
			Model:   model,
		})
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}
