package types

// Usage carries the token counters reported by a provider for one
// completion. Absent counters stay zero.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
	TotalTokens  int `json:"total_tokens,omitempty"`
}

// ProviderUsage pairs one turn's token usage with the model that
// produced it. Lead/worker providers report the active sub-model here
// so the agent can emit a ModelChange event when it switches.
type ProviderUsage struct {
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}
