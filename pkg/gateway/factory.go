package gateway

import (
	"github.com/go-go-golems/candlewick/pkg/models"
	"github.com/pkg/errors"
)

// Config carries the credentials and endpoints used to build gateways.
type Config struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaEnabled bool
}

// Builder turns a provider into a concrete Gateway. The per-provider
// constructors are injected so this package does not import its own
// subpackages.
type Builder func(cfg Config) (Gateway, error)

// Factory assembles a Registry from a Config and a set of per-provider
// builders.
type Factory struct {
	builders map[models.Provider]Builder
}

func NewFactory() *Factory {
	return &Factory{
		builders: map[models.Provider]Builder{},
	}
}

func (f *Factory) RegisterBuilder(p models.Provider, b Builder) {
	f.builders[p] = b
}

// Build constructs a Registry containing a gateway for every provider whose
// builder succeeds. Providers without a builder are not an error; asking for
// them later yields ErrProviderNotConfigured.
func (f *Factory) Build(cfg Config) (*Registry, error) {
	registry := NewRegistry()
	for p, b := range f.builders {
		g, err := b(cfg)
		if err != nil {
			if errors.Is(err, ErrProviderNotConfigured) {
				continue
			}
			return nil, errors.Wrapf(err, "building %s gateway", p)
		}
		registry.Register(p, g)
	}

	if len(registry.gateways) == 0 {
		return nil, errors.Wrap(ErrProviderNotConfigured, "no provider could be configured")
	}
	return registry, nil
}
