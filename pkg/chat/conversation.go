package chat

import (
	"strings"
	"time"

	"github.com/go-go-golems/candlewick/pkg/models"
)

// DefaultTitle is the placeholder given to conversations before their first
// exchange has produced a generated title.
const DefaultTitle = "New Conversation"

// previewMaxLen bounds the sidebar preview derived from the last message.
const previewMaxLen = 80

// Conversation is a titled thread of messages. ModelID/Provider record the
// model the conversation is bound to; an empty ModelID means the conversation
// has not adopted a model yet. Once set, ModelID is never cleared, only
// reassigned.
type Conversation struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title"`
	LastMessagePreview string          `json:"lastMessagePreview"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	Pinned             bool            `json:"pinned"`
	ModelID            string          `json:"modelId,omitempty"`
	Provider           models.Provider `json:"provider,omitempty"`
}

func NewConversation(id string, title string) *Conversation {
	if title == "" {
		title = DefaultTitle
	}
	return &Conversation{
		ID:        id,
		Title:     title,
		UpdatedAt: time.Now(),
	}
}

// HasDefaultTitle reports whether the conversation still carries the
// placeholder title, meaning title generation has not run yet.
func (c *Conversation) HasDefaultTitle() bool {
	return c.Title == "" || c.Title == DefaultTitle
}

// BindModel stamps the conversation with the model/provider actually in use.
func (c *Conversation) BindModel(modelID string, provider models.Provider) {
	c.ModelID = modelID
	c.Provider = provider
}

// Touch updates the preview and timestamp from the given message.
func (c *Conversation) Touch(m *Message) {
	c.LastMessagePreview = Preview(m.Content)
	c.UpdatedAt = m.Time
}

// Preview derives a bounded single-line preview from message content.
func Preview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= previewMaxLen {
		return content
	}
	return string(runes[:previewMaxLen-1]) + "…"
}
