package models

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// IsOpenAIModel reports whether the model id looks like an OpenAI engine name.
func IsOpenAIModel(id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	if strings.HasPrefix(id, "gpt") {
		return true
	}
	if strings.HasPrefix(id, "text-") {
		return true
	}
	return strings.HasPrefix(id, "o1") ||
		strings.HasPrefix(id, "o3") ||
		strings.HasPrefix(id, "o4")
}

// IsClaudeModel reports whether the model id looks like an Anthropic engine name.
func IsClaudeModel(id string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(id)), "claude")
}

// IsGeminiModel reports whether the model id looks like a Google engine name.
func IsGeminiModel(id string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(id)), "gemini")
}

// IsMistralModel reports whether the model id looks like a Mistral engine name.
func IsMistralModel(id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.HasPrefix(id, "mistral") || strings.HasPrefix(id, "mixtral")
}

// InferProvider guesses the provider that owns a model id when the model is
// not present in the catalog. Self-hosted models are conventionally tagged
// ("llama2:7b"), which is how ollama names them.
//
// This is a best-effort heuristic with no guarantee for custom model names;
// callers should treat the result as a default, not a fact. The second return
// value is false when nothing matched and DefaultProvider was assumed.
func InferProvider(id string) (Provider, bool) {
	switch {
	case IsOpenAIModel(id):
		return ProviderOpenAI, true
	case IsClaudeModel(id):
		return ProviderClaude, true
	case IsGeminiModel(id):
		return ProviderGemini, true
	case IsMistralModel(id):
		return ProviderMistral, true
	case strings.Contains(id, ":"):
		return ProviderOllama, true
	}

	log.Warn().Str("model_id", id).
		Str("provider", string(DefaultProvider)).
		Msg("could not infer provider from model id, assuming default")
	return DefaultProvider, false
}
