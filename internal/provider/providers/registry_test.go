package providers

import (
	"testing"

	"github.com/opengw/llmgateway/internal/provider"
)

func TestProviderFactories(t *testing.T) {
	if len(ProviderFactories) != 7 {
		t.Errorf("Expected exactly 7 provider factories, got %d", len(ProviderFactories))
	}

	requiredProviders := []string{
		"openai",
		"anthropic",
		"gemini",
		"bedrock",
		"deepseek",
		"together",
		"xai",
	}

	for _, name := range requiredProviders {
		if _, ok := ProviderFactories[name]; !ok {
			t.Errorf("Required provider %q not found in ProviderFactories", name)
		}
	}
}

func TestProviderCount(t *testing.T) {
	if count := ProviderCount(); count != 7 {
		t.Errorf("ProviderCount() = %d, want 7", count)
	}
}

func TestRegisterAllProviders(t *testing.T) {
	registry := provider.NewRegistry()
	RegisterAllProviders(registry)

	cfg := provider.ProviderConfig{
		Name:   "test-openai",
		Type:   "openai",
		APIKey: "test-key",
		Models: []string{"gpt-4"},
	}

	p, err := registry.CreateProvider(cfg)
	if err != nil {
		t.Fatalf("CreateProvider() error = %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("Provider.Name() = %v, want openai", p.Name())
	}
}

func TestGetProviderInfo(t *testing.T) {
	tests := []struct {
		name        string
		wantNil     bool
		displayName string
	}{
		{"openai", false, "OpenAI"},
		{"anthropic", false, "Anthropic"},
		{"bedrock", false, "AWS Bedrock"},
		{"nonexistent", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := GetProviderInfo(tt.name)
			if (info == nil) != tt.wantNil {
				t.Errorf("GetProviderInfo(%q) = %v, wantNil %v", tt.name, info, tt.wantNil)
			}
			if !tt.wantNil && info.DisplayName != tt.displayName {
				t.Errorf("DisplayName = %v, want %v", info.DisplayName, tt.displayName)
			}
		})
	}
}

func TestGetProvidersByCategory(t *testing.T) {
	tests := []struct {
		category string
		minCount int
	}{
		{"commercial", 2},
		{"cloud", 1},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			providers := GetProvidersByCategory(tt.category)
			if len(providers) < tt.minCount {
				t.Errorf("GetProvidersByCategory(%q) returned %d providers, want >= %d",
					tt.category, len(providers), tt.minCount)
			}
		})
	}
}

func TestAllProvidersHaveRequiredFields(t *testing.T) {
	for _, info := range AllProviders {
		t.Run(info.Name, func(t *testing.T) {
			if info.Name == "" {
				t.Error("Provider name is empty")
			}
			if info.DisplayName == "" {
				t.Error("Provider display name is empty")
			}
			if info.Description == "" {
				t.Error("Provider description is empty")
			}
			if info.Website == "" {
				t.Error("Provider website is empty")
			}
			if len(info.Categories) == 0 {
				t.Error("Provider has no categories")
			}
		})
	}
}

func TestFactoryCreatesValidProvider(t *testing.T) {
	testCases := []struct {
		providerType string
		apiKey       string
	}{
		{"openai", "test-key"},
		{"anthropic", "test-key"},
		{"deepseek", "test-key"},
		{"together", "test-key"},
		{"xai", "test-key"},
	}

	for _, tc := range testCases {
		t.Run(tc.providerType, func(t *testing.T) {
			factory, ok := ProviderFactories[tc.providerType]
			if !ok {
				t.Fatalf("Factory for %q not found", tc.providerType)
			}

			cfg := provider.ProviderConfig{
				APIKey: tc.apiKey,
				Models: []string{"test-model"},
			}

			p, err := factory(cfg)
			if err != nil {
				t.Fatalf("Factory() error = %v", err)
			}

			if p == nil {
				t.Fatal("Factory() returned nil provider")
			}

			if p.Name() == "" {
				t.Error("Provider.Name() returned empty string")
			}
		})
	}
}
