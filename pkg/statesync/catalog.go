package statesync

import (
	"context"
	"fmt"

	"github.com/go-go-golems/candlewick/pkg/events"
	"github.com/go-go-golems/candlewick/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// FetchAvailableModels refreshes the model catalog: it loads the enablement
// allow-lists, fetches the cross-provider catalog, filters it, and
// reconciles the active selection against the result.
//
// Concurrent calls are collapsed into one in-flight fetch; a superseded
// fetch is handled by the generation counter in reconcileCatalog, which
// re-reads current state at completion time instead of racing to overwrite
// it with stale data.
func (s *Synchronizer) FetchAvailableModels(ctx context.Context) error {
	_, err, _ := s.fetchGroup.Do("catalog", func() (interface{}, error) {
		return nil, s.fetchAvailableModels(ctx)
	})
	return err
}

func (s *Synchronizer) fetchAvailableModels(ctx context.Context) error {
	s.mu.Lock()
	s.isLoadingModels = true
	s.catalogGeneration++
	generation := s.catalogGeneration
	s.mu.Unlock()

	enablement, err := s.enablement()
	if err != nil {
		s.finishModelLoad()
		s.setError(fmt.Sprintf("Could not load model configuration: %s", err.Error()))
		return errors.Wrap(err, "load enablement")
	}

	catalog, err := s.gateways.ListModels(ctx)
	if err != nil {
		// stale-but-present beats empty: keep the existing catalog and
		// selection untouched
		s.finishModelLoad()
		s.setError(fmt.Sprintf("Could not load models: %s", err.Error()))
		return errors.Wrap(err, "list models")
	}

	filtered := enablement.Filter(catalog)
	applied := s.reconcileCatalog(generation, filtered, enablement)
	s.finishModelLoad()

	if !applied {
		log.Debug().Uint64("generation", generation).Msg("catalog fetch superseded, reconciliation skipped")
		return nil
	}

	s.clearError()
	s.save()
	s.publish(events.NewStateEvent(events.EventTypeCatalogUpdated))
	return nil
}

func (s *Synchronizer) finishModelLoad() {
	s.mu.Lock()
	s.isLoadingModels = false
	s.mu.Unlock()
}

// reconcileCatalog installs a freshly fetched catalog and repairs the
// selection. It reads the selection state as it is now, not as it was when
// the fetch started, and no-ops when a newer generation already reconciled.
//
// Rules, in priority order:
//  1. the selected model is present in the filtered catalog: keep it and
//     correct the provider if the persisted one is stale;
//  2. the selected conversation is bound to the (absent) selected model:
//     keep the selection pending rather than force-picking a different
//     model over a possibly transient catalog gap;
//  3. otherwise pick a default: an explicitly enabled non-default-provider
//     model wins over plain catalog order.
//
// Conversation-bound model ids are never cleared here; only their provider
// is repaired when the model is present in the catalog.
func (s *Synchronizer) reconcileCatalog(generation uint64, filtered models.Catalog, enablement models.Enablement) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reconciledGeneration >= generation {
		return false
	}
	s.reconciledGeneration = generation
	s.catalog = filtered

	for _, c := range s.conversations {
		if c.ModelID == "" {
			continue
		}
		if m, ok := filtered.Lookup(c.ModelID); ok && c.Provider != m.Provider {
			log.Debug().
				Str("conversation_id", c.ID).
				Str("model_id", c.ModelID).
				Str("old_provider", string(c.Provider)).
				Str("new_provider", string(m.Provider)).
				Msg("repairing conversation provider from catalog")
			c.Provider = m.Provider
		}
	}

	if s.selectedModelID != "" {
		if m, ok := filtered.Lookup(s.selectedModelID); ok {
			if s.selectedProvider != m.Provider {
				log.Debug().
					Str("model_id", m.ID).
					Str("old_provider", string(s.selectedProvider)).
					Str("new_provider", string(m.Provider)).
					Msg("repairing selected provider from catalog")
				s.selectedProvider = m.Provider
			}
			return true
		}

		if c, ok := s.conversationByID(s.selectedConversationID); ok &&
			c.ModelID != "" && c.ModelID == s.selectedModelID {
			// the selected conversation's own model is missing from the
			// catalog; keep it pending instead of switching under the user
			log.Debug().
				Str("conversation_id", c.ID).
				Str("model_id", c.ModelID).
				Msg("bound model absent from catalog, keeping selection pending")
			return true
		}
	}

	if m, ok := pickDefaultModel(filtered, enablement); ok {
		s.selectedModelID = m.ID
		s.selectedProvider = m.Provider
		log.Debug().Str("model_id", m.ID).Str("provider", string(m.Provider)).Msg("auto-selected default model")
	}
	return true
}

// pickDefaultModel chooses the model selected when nothing valid is
// selected: an explicitly enabled model outside the default provider takes
// precedence, then the first filtered model in catalog order.
func pickDefaultModel(filtered models.Catalog, enablement models.Enablement) (models.ModelDescriptor, bool) {
	for _, m := range filtered {
		if m.Provider != models.DefaultProvider && enablement.ExplicitlyEnabled(m) {
			return m, true
		}
	}
	if len(filtered) > 0 {
		return filtered[0], true
	}
	return models.ModelDescriptor{}, false
}

// SetSelectedModel sets the global selection to the given model. When the
// provider is empty it is resolved from the catalog, or inferred from the
// model id as a best-effort default. If a conversation is selected, its
// binding is reassigned to match.
func (s *Synchronizer) SetSelectedModel(modelID string, provider models.Provider) {
	if modelID == "" {
		return
	}

	s.mu.Lock()
	if provider == "" {
		if m, ok := s.catalog.Lookup(modelID); ok {
			provider = m.Provider
		} else {
			inferredProvider, inferred := models.InferProvider(modelID)
			if !inferred {
				log.Warn().Str("model_id", modelID).Msg("set model: provider inferred, not verified")
			}
			provider = inferredProvider
		}
	}

	s.selectedModelID = modelID
	s.selectedProvider = provider
	if c, ok := s.conversationByID(s.selectedConversationID); ok {
		c.BindModel(modelID, provider)
	}
	s.mu.Unlock()

	s.save()
	s.publish(events.NewStateEvent(events.EventTypeSelectionChanged).WithModel(modelID, provider))
}
