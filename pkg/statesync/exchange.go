package statesync

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/candlewick/pkg/chat"
	"github.com/go-go-golems/candlewick/pkg/events"
	"github.com/go-go-golems/candlewick/pkg/gateway"
	"github.com/go-go-golems/candlewick/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// exchangeResult is the tagged outcome of a gateway round-trip: either a
// persisted assistant message or the reason it failed. A single
// reconciliation function consumes it, so the rollback branch lives in one
// place instead of scattered error handling.
type exchangeResult struct {
	message *chat.Message
	err     error
}

// SendMessage appends a user message to the conversation, obtains a model
// completion, and appends the assistant reply.
//
// Both halves are persisted before they are reflected in memory, so the UI
// never shows a message that failed to persist. When the user half is
// durable but the completion fails, the user message stays visible and no
// retry is attempted; the next user action triggers a fresh exchange.
//
// Blank input is a silent no-op, not an error.
func (s *Synchronizer) SendMessage(ctx context.Context, conversationID string, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	s.mu.Lock()
	c, ok := s.conversationByID(conversationID)
	if !ok {
		s.mu.Unlock()
		return errors.Errorf("unknown conversation %s", conversationID)
	}
	s.isSending = true
	modelID, provider := s.resolveModelLocked(c)
	wasFirstExchange := len(s.messages[conversationID]) == 0 && c.HasDefaultTitle()
	s.mu.Unlock()
	defer s.clearSending()

	// persist before reflecting
	rec, err := s.backend.AppendMessage(ctx, conversationID, text, chat.RoleUser)
	if err != nil {
		s.setError(fmt.Sprintf("Could not send message: %s", err.Error()))
		return errors.Wrap(err, "append user message")
	}

	s.mu.Lock()
	userMsg := recordToMessage(rec)
	s.messages[conversationID] = append(s.messages[conversationID], userMsg)
	// re-look up instead of reusing c: a list refresh may have replaced the
	// conversation objects while we were on the network
	if c, ok := s.conversationByID(conversationID); ok {
		c.Touch(userMsg)
	}
	history := s.messages[conversationID].Clone()
	s.mu.Unlock()

	s.save()
	s.publish(events.NewStateEvent(events.EventTypeMessagesAppended).WithConversation(conversationID))

	result := s.runExchange(ctx, conversationID, provider, modelID, history)
	if result.err != nil {
		s.setError(s.classifyExchangeError(result.err, modelID, provider))
		return result.err
	}

	s.mu.Lock()
	s.messages[conversationID] = append(s.messages[conversationID], result.message)
	if c, ok := s.conversationByID(conversationID); ok {
		c.Touch(result.message)
		// stamp the conversation with what was actually used, so selecting it
		// later restores the right model even if the global selection moved on
		c.BindModel(modelID, provider)
	}
	s.mu.Unlock()

	s.clearError()
	s.save()
	s.publish(events.NewStateEvent(events.EventTypeMessagesAppended).
		WithConversation(conversationID).
		WithModel(modelID, provider))

	if wasFirstExchange {
		titleCtx := context.WithoutCancel(ctx)
		go func() {
			defer s.notifyBackgroundDone()
			s.generateTitle(titleCtx, conversationID, userMsg.Content, result.message.Content, provider, modelID)
		}()
	}

	return nil
}

// RegenerateResponse replaces an assistant message with a fresh completion
// built from the history preceding it.
//
// The original message is removed optimistically before the gateway call;
// on failure it is spliced back at its original index, so a failed
// regeneration leaves the message list byte-for-byte identical. On success
// the new message takes the old one's index, and the conversation
// preview/timestamp are only touched when the regenerated message was the
// last one.
func (s *Synchronizer) RegenerateResponse(ctx context.Context, conversationID string, messageID string) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	s.mu.Lock()
	c, ok := s.conversationByID(conversationID)
	if !ok {
		s.mu.Unlock()
		log.Warn().Str("conversation_id", conversationID).Msg("regenerate: unknown conversation")
		return nil
	}

	msgs := s.messages[conversationID]
	idx := msgs.IndexOf(messageID)
	if idx < 0 || msgs[idx].Role != chat.RoleAssistant {
		s.mu.Unlock()
		log.Warn().
			Str("conversation_id", conversationID).
			Str("message_id", messageID).
			Msg("regenerate: assistant message not found")
		return nil
	}

	userIdx := -1
	for i := idx - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleUser {
			userIdx = i
			break
		}
	}
	if userIdx < 0 {
		s.mu.Unlock()
		log.Warn().
			Str("conversation_id", conversationID).
			Str("message_id", messageID).
			Msg("regenerate: no preceding user message")
		return nil
	}

	original := *msgs[idx]
	history := msgs[:idx].Clone()

	// optimistic removal; the snapshot above is the rollback path
	s.messages[conversationID] = append(msgs[:idx:idx], msgs[idx+1:]...)
	s.isSending = true
	modelID, provider := s.resolveModelLocked(c)
	s.mu.Unlock()
	defer s.clearSending()

	result := s.runExchange(ctx, conversationID, provider, modelID, history)
	s.applyRegeneration(conversationID, idx, &original, modelID, provider, result)

	return result.err
}

// applyRegeneration is the single reconciliation point for a regenerate:
// it splices either the new message or the original snapshot back into the
// slot the removed message occupied. The conversation is looked up again
// here because a list refresh may have replaced the objects during the
// gateway call.
func (s *Synchronizer) applyRegeneration(
	conversationID string,
	idx int,
	original *chat.Message,
	modelID string,
	provider models.Provider,
	result exchangeResult,
) {
	s.mu.Lock()
	msgs := s.messages[conversationID]

	if result.err != nil {
		restored := make(chat.Messages, 0, len(msgs)+1)
		restored = append(restored, msgs[:idx]...)
		restored = append(restored, original)
		restored = append(restored, msgs[idx:]...)
		s.messages[conversationID] = restored
		s.mu.Unlock()

		s.setError(s.classifyExchangeError(result.err, modelID, provider))
		return
	}

	spliced := make(chat.Messages, 0, len(msgs)+1)
	spliced = append(spliced, msgs[:idx]...)
	spliced = append(spliced, result.message)
	spliced = append(spliced, msgs[idx:]...)
	s.messages[conversationID] = spliced

	if c, ok := s.conversationByID(conversationID); ok {
		if idx == len(spliced)-1 {
			c.Touch(result.message)
		}
		c.BindModel(modelID, provider)
	}
	s.mu.Unlock()

	s.clearError()
	s.save()
	s.publish(events.NewStateEvent(events.EventTypeMessagesAppended).
		WithConversation(conversationID).
		WithModel(modelID, provider))
}

// runExchange performs the gateway half of an exchange: completion,
// formatting, and durable append of the assistant message.
func (s *Synchronizer) runExchange(
	ctx context.Context,
	conversationID string,
	provider models.Provider,
	modelID string,
	history chat.Messages,
) exchangeResult {
	if modelID == "" {
		return exchangeResult{err: errors.Wrap(gateway.ErrModelNotFound, "no model selected")}
	}

	cfg := s.settings.Get(modelID)
	raw, err := s.gateways.Complete(ctx, provider, modelID, history, cfg)
	if err != nil {
		return exchangeResult{err: errors.Wrap(err, "completion")}
	}

	content := s.formatter.Clean(raw)

	rec, err := s.backend.AppendMessage(ctx, conversationID, content, chat.RoleAssistant)
	if err != nil {
		return exchangeResult{err: errors.Wrap(err, "append assistant message")}
	}

	return exchangeResult{message: recordToMessage(rec)}
}

// resolveModelLocked determines the model and provider an exchange should
// use, preferring the conversation's own binding over the global selection
// and re-deriving the provider from the catalog when they disagree. Callers
// must hold s.mu.
func (s *Synchronizer) resolveModelLocked(c *chat.Conversation) (string, models.Provider) {
	modelID := c.ModelID
	provider := c.Provider
	if modelID == "" {
		modelID = s.selectedModelID
		provider = s.selectedProvider
	}

	if m, ok := s.catalog.Lookup(modelID); ok {
		if provider != m.Provider {
			log.Debug().
				Str("model_id", modelID).
				Str("old_provider", string(provider)).
				Str("new_provider", string(m.Provider)).
				Msg("re-derived provider from catalog before exchange")
		}
		return modelID, m.Provider
	}

	if provider == "" && modelID != "" {
		inferredProvider, inferred := models.InferProvider(modelID)
		if !inferred {
			log.Warn().Str("model_id", modelID).Msg("exchange: provider inferred, not verified")
		}
		provider = inferredProvider
	}
	return modelID, provider
}

func (s *Synchronizer) clearSending() {
	s.mu.Lock()
	s.isSending = false
	s.mu.Unlock()
}

func (s *Synchronizer) classifyExchangeError(err error, modelID string, provider models.Provider) string {
	switch {
	case errors.Is(err, gateway.ErrModelNotFound):
		return fmt.Sprintf("Model %s is not available, please choose another model", modelID)
	case errors.Is(err, gateway.ErrProviderNotConfigured):
		return fmt.Sprintf("Provider %s is not configured", provider)
	default:
		return fmt.Sprintf("API error: %s", err.Error())
	}
}
