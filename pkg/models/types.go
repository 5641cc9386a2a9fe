package models

// Provider identifies which API family serves a given model.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderClaude     Provider = "claude"
	ProviderGemini     Provider = "gemini"
	ProviderOllama     Provider = "ollama"
	ProviderMistral    Provider = "mistral"
	ProviderPerplexity Provider = "perplexity"
)

// DefaultProvider is used when nothing else is known about a model.
const DefaultProvider = ProviderOpenAI

// ModelDescriptor describes a single model as reported by a provider gateway.
// Descriptors live only in the in-memory catalog; selections that reference
// them are persisted by id/provider, independent of catalog availability.
type ModelDescriptor struct {
	ID            string   `json:"id" yaml:"id"`
	Provider      Provider `json:"provider" yaml:"provider"`
	DisplayName   string   `json:"displayName" yaml:"display_name"`
	ParameterSize string   `json:"parameterSize,omitempty" yaml:"parameter_size,omitempty"`
}

// Catalog is the current set of models the gateways report as available,
// already filtered by user enablement.
type Catalog []ModelDescriptor

// Lookup returns the descriptor for the given model id.
func (c Catalog) Lookup(id string) (ModelDescriptor, bool) {
	for _, m := range c {
		if m.ID == id {
			return m, true
		}
	}
	return ModelDescriptor{}, false
}

// Contains reports whether the catalog carries the given model id.
func (c Catalog) Contains(id string) bool {
	_, ok := c.Lookup(id)
	return ok
}

// ForProvider returns all catalog entries owned by the given provider,
// preserving catalog order.
func (c Catalog) ForProvider(p Provider) Catalog {
	var ret Catalog
	for _, m := range c {
		if m.Provider == p {
			ret = append(ret, m)
		}
	}
	return ret
}
