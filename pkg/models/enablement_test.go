package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnablementEmptyListEnablesAll(t *testing.T) {
	e := Enablement{}
	m := ModelDescriptor{ID: "gpt-4", Provider: ProviderOpenAI}

	assert.True(t, e.Enabled(m))
	assert.False(t, e.ExplicitlyEnabled(m))
}

func TestEnablementAllowList(t *testing.T) {
	e := Enablement{
		ProviderOllama: {"llama2:7b"},
	}

	allowed := ModelDescriptor{ID: "llama2:7b", Provider: ProviderOllama}
	denied := ModelDescriptor{ID: "mistral:7b", Provider: ProviderOllama}
	other := ModelDescriptor{ID: "gpt-4", Provider: ProviderOpenAI}

	assert.True(t, e.Enabled(allowed))
	assert.True(t, e.ExplicitlyEnabled(allowed))
	assert.False(t, e.Enabled(denied))
	// openai has no allow-list, so everything passes but nothing is explicit
	assert.True(t, e.Enabled(other))
	assert.False(t, e.ExplicitlyEnabled(other))
}

func TestEnablementFilterPreservesOrder(t *testing.T) {
	e := Enablement{
		ProviderOllama: {"b", "a"},
	}
	catalog := Catalog{
		{ID: "a", Provider: ProviderOllama},
		{ID: "x", Provider: ProviderOllama},
		{ID: "b", Provider: ProviderOllama},
	}

	filtered := e.Filter(catalog)
	require.Len(t, filtered, 2)
	assert.Equal(t, "a", filtered[0].ID)
	assert.Equal(t, "b", filtered[1].ID)
}

func TestLoadEnablement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	err := os.WriteFile(path, []byte(`providers:
  ollama:
    - llama2:7b
  openai: []
`), 0o644)
	require.NoError(t, err)

	e, err := LoadEnablement(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"llama2:7b"}, e[ProviderOllama])
	assert.Empty(t, e[ProviderOpenAI])
}

func TestLoadEnablementMissingFile(t *testing.T) {
	e, err := LoadEnablement(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, e)
}
