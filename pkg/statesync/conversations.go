package statesync

import (
	"context"
	"fmt"

	"github.com/go-go-golems/candlewick/pkg/backend"
	"github.com/go-go-golems/candlewick/pkg/chat"
	"github.com/go-go-golems/candlewick/pkg/events"
	"github.com/go-go-golems/candlewick/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ListConversations replaces the in-memory conversation list with the
// sessions the backend reports. Local-only fields (pin state, model
// binding) are carried over for ids that already exist so a refresh never
// silently clears them. On failure the prior list is left untouched.
func (s *Synchronizer) ListConversations(ctx context.Context) error {
	records, err := s.backend.ListSessions(ctx)
	if err != nil {
		s.setError(fmt.Sprintf("Could not load conversations: %s", err.Error()))
		return errors.Wrap(err, "list sessions")
	}

	s.mu.Lock()
	existing := map[string]*chat.Conversation{}
	for _, c := range s.conversations {
		existing[c.ID] = c
	}

	conversations := make([]*chat.Conversation, 0, len(records))
	for _, rec := range records {
		c := chat.NewConversation(rec.ID, rec.Title)
		c.UpdatedAt = rec.UpdatedAt
		if msgs := s.messages[rec.ID]; len(msgs) > 0 {
			c.LastMessagePreview = chat.Preview(msgs.Last().Content)
		}
		if prev, ok := existing[rec.ID]; ok {
			c.Pinned = prev.Pinned
			c.ModelID = prev.ModelID
			c.Provider = prev.Provider
		}
		conversations = append(conversations, c)
	}
	s.conversations = conversations
	s.mu.Unlock()

	s.clearError()
	s.save()
	s.publish(events.NewStateEvent(events.EventTypeConversationUpdated))
	return nil
}

// CreateConversation allocates a session on the backend and inserts the new
// conversation at the head of the list. It inherits the currently selected
// model/provider so a new conversation does not start modelless. On failure
// no partial conversation is left behind.
func (s *Synchronizer) CreateConversation(ctx context.Context, titleHint string) (*chat.Conversation, error) {
	id, err := s.backend.CreateSession(ctx, titleHint)
	if err != nil {
		s.setError(fmt.Sprintf("Could not create conversation: %s", err.Error()))
		return nil, errors.Wrap(err, "create session")
	}

	s.mu.Lock()
	c := chat.NewConversation(id, titleHint)
	if s.selectedModelID != "" {
		c.BindModel(s.selectedModelID, s.selectedProvider)
	}
	s.conversations = append([]*chat.Conversation{c}, s.conversations...)
	s.messages[id] = chat.Messages{}
	s.fetched[id] = true
	ret := *c
	s.mu.Unlock()

	s.clearError()
	s.save()
	s.publish(events.NewStateEvent(events.EventTypeConversationCreated).
		WithConversation(id).
		WithModel(ret.ModelID, ret.Provider))

	log.Debug().Str("conversation_id", id).Str("model_id", ret.ModelID).Msg("conversation created")
	return &ret, nil
}

// SelectConversation sets the active conversation. Passing the empty string
// deselects.
//
// If the target carries a model binding, the global selection is
// overwritten to match it even when the model is absent from the current
// catalog; the selection stays pending validation until the next catalog
// fetch. If the target has no binding yet, it adopts the current global
// selection, so every conversation ends up bound to a model lazily.
//
// When messages for the conversation are not cached yet, a fetch is kicked
// off in the background; selection does not wait for it.
func (s *Synchronizer) SelectConversation(ctx context.Context, id string) {
	s.mu.Lock()

	if id == "" {
		s.selectedConversationID = ""
		s.mu.Unlock()
		s.save()
		s.publish(events.NewStateEvent(events.EventTypeSelectionChanged))
		return
	}

	c, ok := s.conversationByID(id)
	if !ok {
		s.mu.Unlock()
		log.Warn().Str("conversation_id", id).Msg("select: unknown conversation")
		return
	}

	s.selectedConversationID = id

	if c.ModelID != "" {
		// restore the conversation's own model
		s.selectedModelID = c.ModelID
		if c.Provider != "" {
			s.selectedProvider = c.Provider
		} else {
			provider, inferred := models.InferProvider(c.ModelID)
			if !inferred {
				log.Warn().Str("model_id", c.ModelID).Msg("select: falling back to inferred provider")
			}
			s.selectedProvider = provider
			c.Provider = provider
		}
	} else if s.selectedModelID != "" {
		// adoption: bind the global selection onto the conversation
		c.BindModel(s.selectedModelID, s.selectedProvider)
	}

	needsFetch := !s.fetched[id]
	modelID, provider := s.selectedModelID, s.selectedProvider
	s.mu.Unlock()

	s.save()
	s.publish(events.NewStateEvent(events.EventTypeSelectionChanged).
		WithConversation(id).
		WithModel(modelID, provider))

	if needsFetch {
		go func() {
			defer s.notifyBackgroundDone()
			if err := s.fetchMessages(ctx, id); err != nil {
				log.Warn().Err(err).Str("conversation_id", id).Msg("background message fetch failed")
			}
		}()
	}
}

// TogglePin flips the pin flag in place. Pin state is local-only; no
// backend call is made, but it is part of the persisted snapshot.
func (s *Synchronizer) TogglePin(id string) {
	s.mu.Lock()
	c, ok := s.conversationByID(id)
	if !ok {
		s.mu.Unlock()
		return
	}
	c.Pinned = !c.Pinned
	s.mu.Unlock()

	s.save()
	s.publish(events.NewStateEvent(events.EventTypeConversationUpdated).WithConversation(id))
}

// DeleteConversation removes a conversation. The backend is the source of
// truth for existence: only a truthful success response mutates in-memory
// state. A falsy or error result leaves the conversation, its messages and
// the current selection untouched.
func (s *Synchronizer) DeleteConversation(ctx context.Context, id string) error {
	ok, err := s.backend.DeleteSession(ctx, id)
	if err != nil {
		s.setError(fmt.Sprintf("Could not delete conversation: %s", err.Error()))
		return errors.Wrap(err, "delete session")
	}
	if !ok {
		s.setError("Could not delete conversation: backend refused")
		return errors.New("backend refused delete")
	}

	s.mu.Lock()
	conversations := make([]*chat.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if c.ID != id {
			conversations = append(conversations, c)
		}
	}
	s.conversations = conversations
	delete(s.messages, id)
	delete(s.fetched, id)
	if s.selectedConversationID == id {
		s.selectedConversationID = ""
	}
	s.mu.Unlock()

	s.clearError()
	s.save()
	s.publish(events.NewStateEvent(events.EventTypeConversationDeleted).WithConversation(id))
	return nil
}

// fetchMessages loads the message history for a conversation from the
// backend and replaces the cache entry. It holds the conversation's keyed
// lock so it cannot interleave with an in-flight send or regenerate.
func (s *Synchronizer) fetchMessages(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.RLock()
	alreadyFetched := s.fetched[id]
	s.mu.RUnlock()
	if alreadyFetched {
		return nil
	}

	records, err := s.backend.ListMessages(ctx, id)
	if err != nil {
		return errors.Wrap(err, "list messages")
	}

	s.mu.Lock()
	msgs := make(chat.Messages, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, recordToMessage(rec))
	}
	s.messages[id] = msgs
	s.fetched[id] = true
	if c, ok := s.conversationByID(id); ok && len(msgs) > 0 {
		c.LastMessagePreview = chat.Preview(msgs.Last().Content)
	}
	s.mu.Unlock()

	s.save()
	s.publish(events.NewStateEvent(events.EventTypeMessagesAppended).WithConversation(id))
	return nil
}

func recordToMessage(rec backend.MessageRecord) *chat.Message {
	return chat.NewMessage(rec.Role, rec.Content, chat.WithID(rec.ID), chat.WithTime(rec.Time))
}
