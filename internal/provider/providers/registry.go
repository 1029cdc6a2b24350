// Package providers provides a centralized registry for all LLM providers
// exposed by the gateway's HTTP surface (cmd/server).
package providers

import (
	"github.com/opengw/llmgateway/internal/provider"
	"github.com/opengw/llmgateway/internal/provider/anthropic"
	"github.com/opengw/llmgateway/internal/provider/bedrock"
	"github.com/opengw/llmgateway/internal/provider/deepseek"
	"github.com/opengw/llmgateway/internal/provider/gemini"
	"github.com/opengw/llmgateway/internal/provider/openai"
	"github.com/opengw/llmgateway/internal/provider/together"
	"github.com/opengw/llmgateway/internal/provider/xai"
)

// ProviderFactories maps provider type names to their factory functions.
// This allows dynamic provider creation based on configuration.
//
// The roster matches the gateway's seven supported provider families:
// native chat-completions providers (OpenAI, DeepSeek, TogetherAI, xAI),
// Anthropic, Gemini, and AWS Bedrock (which internally targets Meta,
// Cohere and Mistral models via its own Converse-style wire format).
var ProviderFactories = map[string]provider.ProviderFactory{
	"openai":    openai.New,
	"anthropic": anthropic.New,
	"gemini":    gemini.New,
	"bedrock":   bedrock.New,
	"deepseek":  deepseek.New,
	"together":  together.New,
	"xai":       xai.New,
}

// ProviderInfo describes a provider's capabilities and configuration.
type ProviderInfo struct {
	Name          string   // Provider identifier
	DisplayName   string   // Human-readable name
	Description   string   // Brief description
	Website       string   // Provider website
	DefaultModels []string // Default model list
	Categories    []string // Provider categories
}

// AllProviders returns information about all supported providers.
var AllProviders = []ProviderInfo{
	{
		Name:          "openai",
		DisplayName:   "OpenAI",
		Description:   "GPT-4, GPT-4o, GPT-3.5 Turbo and other models from OpenAI",
		Website:       "https://openai.com",
		DefaultModels: []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"},
		Categories:    []string{"commercial", "general-purpose"},
	},
	{
		Name:          "anthropic",
		DisplayName:   "Anthropic",
		Description:   "Claude 3.5, Claude 3 Opus, Sonnet, and Haiku models",
		Website:       "https://anthropic.com",
		DefaultModels: []string{"claude-3-5-sonnet-20241022", "claude-3-opus-20240229"},
		Categories:    []string{"commercial", "reasoning"},
	},
	{
		Name:          "gemini",
		DisplayName:   "Google Gemini",
		Description:   "Gemini Pro, Gemini Ultra, and Gemini Flash models",
		Website:       "https://ai.google.dev",
		DefaultModels: []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-2.0-flash-exp"},
		Categories:    []string{"commercial", "multimodal"},
	},
	{
		Name:          "bedrock",
		DisplayName:   "AWS Bedrock",
		Description:   "Meta Llama, Cohere Command, and Mistral models behind AWS Bedrock",
		Website:       "https://aws.amazon.com/bedrock",
		DefaultModels: []string{"meta.llama3-1-70b-instruct-v1:0", "cohere.command-r-plus-v1:0", "mistral.mistral-large-2402-v1:0"},
		Categories:    []string{"enterprise", "cloud"},
	},
	{
		Name:          "deepseek",
		DisplayName:   "DeepSeek",
		Description:   "DeepSeek-Coder, DeepSeek-Chat, and DeepSeek-Reasoner",
		Website:       "https://deepseek.com",
		DefaultModels: []string{"deepseek-chat", "deepseek-coder"},
		Categories:    []string{"coding", "reasoning"},
	},
	{
		Name:          "together",
		DisplayName:   "Together AI",
		Description:   "Access to 100+ open-source models",
		Website:       "https://together.ai",
		DefaultModels: []string{"meta-llama/Meta-Llama-3.1-70B-Instruct-Turbo"},
		Categories:    []string{"fast-inference", "open-source"},
	},
	{
		Name:          "xai",
		DisplayName:   "xAI (Grok)",
		Description:   "Grok models from xAI",
		Website:       "https://x.ai",
		DefaultModels: []string{"grok-4", "grok-3"},
		Categories:    []string{"commercial"},
	},
}

// RegisterAllProviders registers all provider factories with the given registry.
func RegisterAllProviders(registry *provider.Registry) {
	for name, factory := range ProviderFactories {
		registry.RegisterFactory(name, factory)
	}
}

// GetProviderInfo returns information about a specific provider.
func GetProviderInfo(name string) *ProviderInfo {
	for _, info := range AllProviders {
		if info.Name == name {
			return &info
		}
	}
	return nil
}

// GetProvidersByCategory returns all providers in a category.
func GetProvidersByCategory(category string) []ProviderInfo {
	var result []ProviderInfo
	for _, info := range AllProviders {
		for _, cat := range info.Categories {
			if cat == category {
				result = append(result, info)
				break
			}
		}
	}
	return result
}

// ProviderCount returns the total number of supported providers.
func ProviderCount() int {
	return len(ProviderFactories)
}
