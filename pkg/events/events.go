package events

// Package events broadcasts state-change notifications from the synchronizer
// so consumers can react without polling. Events are fanned out through
// watermill publishers subscribed per topic.

import (
	"time"

	"github.com/go-go-golems/candlewick/pkg/models"
)

type EventType string

const (
	EventTypeConversationCreated EventType = "conversation-created"
	EventTypeConversationDeleted EventType = "conversation-deleted"
	EventTypeConversationUpdated EventType = "conversation-updated"
	EventTypeSelectionChanged    EventType = "selection-changed"
	EventTypeMessagesAppended    EventType = "messages-appended"
	EventTypeCatalogUpdated      EventType = "catalog-updated"
	EventTypeHydrated            EventType = "hydrated"
	EventTypeError               EventType = "error"
)

// StateEvent is the payload published for every settled mutation.
type StateEvent struct {
	Type           EventType       `json:"type"`
	ConversationID string          `json:"conversationId,omitempty"`
	ModelID        string          `json:"modelId,omitempty"`
	Provider       models.Provider `json:"provider,omitempty"`
	Error          string          `json:"error,omitempty"`
	Time           time.Time       `json:"time"`
}

func NewStateEvent(t EventType) StateEvent {
	return StateEvent{
		Type: t,
		Time: time.Now(),
	}
}

func (e StateEvent) WithConversation(id string) StateEvent {
	e.ConversationID = id
	return e
}

func (e StateEvent) WithModel(modelID string, provider models.Provider) StateEvent {
	e.ModelID = modelID
	e.Provider = provider
	return e
}

// WithError attaches the classified, human-readable error message.
func (e StateEvent) WithError(msg string) StateEvent {
	e.Error = msg
	return e
}
