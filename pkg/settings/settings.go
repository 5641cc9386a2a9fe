package settings

// Package settings holds per-model chat settings: system prompt, creativity
// and response length. Settings are keyed by model id and have a lifecycle
// independent of conversations; they are only removed on explicit reset.

import (
	"sync"

	"github.com/huandu/go-clone"
)

// ChatSettings are the tunables applied when completing against a model.
// Nil pointers mean "use the provider default".
type ChatSettings struct {
	SystemPrompt      *string  `json:"systemPrompt,omitempty" yaml:"system_prompt,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxResponseTokens *int     `json:"maxResponseTokens,omitempty" yaml:"max_response_tokens,omitempty"`
}

func (s *ChatSettings) Clone() *ChatSettings {
	return clone.Clone(s).(*ChatSettings)
}

// Registry stores ChatSettings per model id.
type Registry struct {
	mu       sync.RWMutex
	byModel  map[string]*ChatSettings
	defaults *ChatSettings
}

type RegistryOption func(*Registry)

// WithDefaults sets the settings returned for models without an explicit
// entry.
func WithDefaults(s *ChatSettings) RegistryOption {
	return func(r *Registry) {
		r.defaults = s
	}
}

func NewRegistry(options ...RegistryOption) *Registry {
	ret := &Registry{
		byModel:  map[string]*ChatSettings{},
		defaults: &ChatSettings{},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Get returns a copy of the settings for the given model id, falling back to
// the registry defaults. Mutating the returned value does not affect the
// registry.
func (r *Registry) Get(modelID string) *ChatSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.byModel[modelID]; ok {
		return s.Clone()
	}
	return r.defaults.Clone()
}

// Set stores settings for a model id, replacing any previous entry.
func (r *Registry) Set(modelID string, s *ChatSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byModel[modelID] = s.Clone()
}

// Reset removes the explicit entry for a model id, reverting it to defaults.
func (r *Registry) Reset(modelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byModel, modelID)
}

// Export returns a serializable copy of all explicit entries, for the
// persisted snapshot.
func (r *Registry) Export() map[string]*ChatSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ret := make(map[string]*ChatSettings, len(r.byModel))
	for k, v := range r.byModel {
		ret[k] = v.Clone()
	}
	return ret
}

// Import replaces all explicit entries with the given map, used during
// hydration.
func (r *Registry) Import(entries map[string]*ChatSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byModel = make(map[string]*ChatSettings, len(entries))
	for k, v := range entries {
		if v == nil {
			continue
		}
		r.byModel[k] = v.Clone()
	}
}
