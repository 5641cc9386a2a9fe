package statesync

import (
	"context"
	"fmt"

	"github.com/go-go-golems/candlewick/pkg/chat"
	"github.com/go-go-golems/candlewick/pkg/events"
	"github.com/go-go-golems/candlewick/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Hydrate restores persisted state at process start.
//
// The persisted snapshot is applied synchronously and the Hydrated flag is
// raised before anything async happens, so consumers can wait on it before
// trusting the selection fields. If the selected conversation carries a
// model binding, it is mirrored onto the global selection immediately, best
// effort and pre-catalog; the catalog fetch that Hydrate kicks off in the
// background is the authoritative reconciliation pass and re-reads current
// state when it completes.
//
// A corrupt or unreadable snapshot surfaces an error but still marks the
// state hydrated, so the application starts empty instead of hanging.
func (s *Synchronizer) Hydrate(ctx context.Context) error {
	snapshot, err := s.store.Load()
	if err != nil {
		s.mu.Lock()
		s.hydrated = true
		s.mu.Unlock()
		s.setError(fmt.Sprintf("Could not restore saved state: %s", err.Error()))
		s.publish(events.NewStateEvent(events.EventTypeHydrated))
		// the catalog fetch does not depend on a readable snapshot; without
		// it a corrupt store would also leave the model selection empty
		go func() {
			defer s.notifyBackgroundDone()
			if fetchErr := s.FetchAvailableModels(ctx); fetchErr != nil {
				log.Warn().Err(fetchErr).Msg("post-hydration catalog fetch failed")
			}
		}()
		return errors.Wrap(err, "load snapshot")
	}

	s.mu.Lock()
	if snapshot != nil {
		conversations := make([]*chat.Conversation, 0, len(snapshot.Conversations))
		for _, c := range snapshot.Conversations {
			if c == nil {
				continue
			}
			c_ := *c
			conversations = append(conversations, &c_)
		}
		s.conversations = conversations
		s.selectedConversationID = snapshot.SelectedConversationID
		s.selectedModelID = snapshot.SelectedModelID
		if snapshot.SelectedProvider != "" {
			s.selectedProvider = snapshot.SelectedProvider
		}
		s.settings.Import(snapshot.Settings)
	}
	s.hydrated = true

	// mirror the selected conversation's binding onto the global selection
	// before any catalog exists
	selectedID := s.selectedConversationID
	if c, ok := s.conversationByID(selectedID); ok && c.ModelID != "" {
		s.selectedModelID = c.ModelID
		if c.Provider != "" {
			s.selectedProvider = c.Provider
		} else {
			provider, _ := models.InferProvider(c.ModelID)
			s.selectedProvider = provider
		}
	}
	modelID, provider := s.selectedModelID, s.selectedProvider
	s.mu.Unlock()

	log.Debug().
		Str("selected_conversation", selectedID).
		Str("selected_model", modelID).
		Str("selected_provider", string(provider)).
		Int("conversations", len(s.Conversations())).
		Msg("state hydrated")

	s.publish(events.NewStateEvent(events.EventTypeHydrated).
		WithConversation(selectedID).
		WithModel(modelID, provider))

	go func() {
		defer s.notifyBackgroundDone()
		if err := s.FetchAvailableModels(ctx); err != nil {
			log.Warn().Err(err).Msg("post-hydration catalog fetch failed")
		}
	}()

	if selectedID != "" {
		go func() {
			defer s.notifyBackgroundDone()
			if err := s.fetchMessages(ctx, selectedID); err != nil {
				log.Warn().Err(err).Str("conversation_id", selectedID).Msg("post-hydration message fetch failed")
			}
		}()
	}

	return nil
}
