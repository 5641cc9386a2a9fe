package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferProvider(t *testing.T) {
	tests := []struct {
		id       string
		provider Provider
		inferred bool
	}{
		{"gpt-4", ProviderOpenAI, true},
		{"gpt-3.5-turbo", ProviderOpenAI, true},
		{"text-davinci-003", ProviderOpenAI, true},
		{"o1-mini", ProviderOpenAI, true},
		{"claude-3-opus", ProviderClaude, true},
		{"gemini-pro", ProviderGemini, true},
		{"mistral-large", ProviderMistral, true},
		{"mixtral-8x7b", ProviderMistral, true},
		{"llama2:7b", ProviderOllama, true},
		{"my-custom-model", DefaultProvider, false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, ok := InferProvider(tt.id)
			assert.Equal(t, tt.provider, p)
			assert.Equal(t, tt.inferred, ok)
		})
	}
}

func TestCatalogLookup(t *testing.T) {
	c := Catalog{
		{ID: "gpt-4", Provider: ProviderOpenAI},
		{ID: "llama2:7b", Provider: ProviderOllama},
	}

	m, ok := c.Lookup("llama2:7b")
	require.True(t, ok)
	assert.Equal(t, ProviderOllama, m.Provider)

	_, ok = c.Lookup("nope")
	assert.False(t, ok)

	assert.Len(t, c.ForProvider(ProviderOpenAI), 1)
	assert.Empty(t, c.ForProvider(ProviderClaude))
}
