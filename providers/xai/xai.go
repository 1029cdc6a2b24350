// Package xai provides the xAI (Grok) provider for LLMux library mode.
// xAI exposes an OpenAI-compatible chat-completions API.
// API Reference: https://docs.x.ai/docs/api-reference
package xai

import (
	"github.com/opengw/llmgateway/pkg/provider"
	"github.com/opengw/llmgateway/providers/openailike"
)

const (
	// ProviderName is the identifier for this provider.
	ProviderName = "xai"

	// DefaultBaseURL is the default xAI API endpoint.
	DefaultBaseURL = "https://api.x.ai/v1"
)

// DefaultModels lists commonly available xAI models.
var DefaultModels = []string{
	"grok-4",
	"grok-4-fast",
	"grok-3",
	"grok-3-mini",
}

var providerInfo = openailike.Info{
	Name:              ProviderName,
	DefaultBaseURL:    DefaultBaseURL,
	SupportsStreaming: true,
	SupportsEmbedding: false,
	ModelPrefixes:     []string{"grok-"},
}

// Provider wraps the OpenAI-like provider for xAI.
type Provider struct {
	*openailike.Provider
}

// New creates a new xAI provider with the given options.
func New(opts ...openailike.Option) *Provider {
	return &Provider{
		Provider: openailike.New(providerInfo, opts...),
	}
}

// NewFromConfig creates a provider from a Config struct.
func NewFromConfig(cfg provider.Config) (provider.Provider, error) {
	return openailike.NewFromConfig(providerInfo, cfg)
}
