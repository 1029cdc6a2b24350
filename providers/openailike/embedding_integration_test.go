package openailike_test

import (
	"testing"

	"github.com/opengw/llmgateway/providers/deepseek"
	"github.com/opengw/llmgateway/providers/together"
	"github.com/opengw/llmgateway/providers/xai"
	"github.com/stretchr/testify/assert"
)

// TestProviderEmbeddingSupport verifies that OpenAI-family providers correctly
// declare embedding support via their ProviderInfo.SupportsEmbedding flag.
func TestProviderEmbeddingSupport(t *testing.T) {
	testCases := []struct {
		name            string
		createProvider  func() interface{ SupportEmbedding() bool }
		expectedSupport bool
		reason          string
	}{
		{
			name: "deepseek",
			createProvider: func() interface{ SupportEmbedding() bool } {
				return deepseek.New()
			},
			expectedSupport: false,
			reason:          "DeepSeek primarily supports chat",
		},
		{
			name: "xai",
			createProvider: func() interface{ SupportEmbedding() bool } {
				return xai.New()
			},
			expectedSupport: false,
			reason:          "xAI does not expose an embeddings endpoint",
		},
		{
			name: "together",
			createProvider: func() interface{ SupportEmbedding() bool } {
				return together.New()
			},
			expectedSupport: true,
			reason:          "Together AI supports embeddings",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			provider := tc.createProvider()
			actual := provider.SupportEmbedding()
			assert.Equal(t, tc.expectedSupport, actual,
				"Provider %s should %ssupport embeddings: %s",
				tc.name,
				map[bool]string{true: "", false: "NOT "}[tc.expectedSupport],
				tc.reason,
			)
		})
	}
}

// TestEmbeddingSupportPreventsIncorrectCalls documents that callers can check
// SupportEmbedding() before dispatching, instead of discovering a 404 from
// the upstream API at request time.
func TestEmbeddingSupportPreventsIncorrectCalls(t *testing.T) {
	xaiProvider := xai.New()

	if xaiProvider.SupportEmbedding() {
		t.Fatal("xai should not support embeddings, but SupportEmbedding() returned true")
	}
}
