package gateway

// Package gateway defines the model-provider collaborator: a catalog of
// available models and a chat-completion call. Concrete gateways live in
// subpackages, one per provider API.

import (
	"context"

	"github.com/go-go-golems/candlewick/pkg/chat"
	"github.com/go-go-golems/candlewick/pkg/models"
	"github.com/go-go-golems/candlewick/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrModelNotFound signals that the provider does not know the
	// requested model id.
	ErrModelNotFound = errors.New("model not found")
	// ErrProviderNotConfigured signals that no gateway is registered (or
	// no credentials exist) for the requested provider.
	ErrProviderNotConfigured = errors.New("provider not configured")
)

// Gateway is a single provider's API surface.
type Gateway interface {
	// ListModels returns the models this provider currently serves.
	ListModels(ctx context.Context) ([]models.ModelDescriptor, error)
	// Complete runs a chat completion over the full message history and
	// returns the raw generated text.
	Complete(ctx context.Context, modelID string, history chat.Messages, cfg *settings.ChatSettings) (string, error)
}

// Registry is the cross-provider gateway the synchronizer talks to. It
// aggregates catalogs and dispatches completions by provider.
type Registry struct {
	gateways map[models.Provider]Gateway
}

func NewRegistry() *Registry {
	return &Registry{
		gateways: map[models.Provider]Gateway{},
	}
}

func (r *Registry) Register(p models.Provider, g Gateway) {
	r.gateways[p] = g
}

// Providers returns the providers with a registered gateway.
func (r *Registry) Providers() []models.Provider {
	ret := make([]models.Provider, 0, len(r.gateways))
	for p := range r.gateways {
		ret = append(ret, p)
	}
	return ret
}

// ListModels aggregates the catalogs of all registered gateways. A provider
// that fails to answer is skipped with a warning; the call only errors when
// every provider failed, so one unreachable backend does not blank out the
// catalog.
func (r *Registry) ListModels(ctx context.Context) (models.Catalog, error) {
	var catalog models.Catalog
	var lastErr error
	failures := 0

	for p, g := range r.gateways {
		descriptors, err := g.ListModels(ctx)
		if err != nil {
			log.Warn().Err(err).Str("provider", string(p)).Msg("provider catalog fetch failed")
			lastErr = err
			failures++
			continue
		}
		catalog = append(catalog, descriptors...)
	}

	if failures > 0 && failures == len(r.gateways) {
		return nil, errors.Wrap(lastErr, "all providers failed to list models")
	}
	return catalog, nil
}

// Complete dispatches a completion to the gateway registered for the given
// provider.
func (r *Registry) Complete(ctx context.Context, provider models.Provider, modelID string, history chat.Messages, cfg *settings.ChatSettings) (string, error) {
	g, ok := r.gateways[provider]
	if !ok {
		return "", errors.Wrapf(ErrProviderNotConfigured, "provider %s", provider)
	}
	return g.Complete(ctx, modelID, history, cfg)
}
