package chat

// Package chat provides the value types for chat conversations.
//
// A Conversation is a titled thread of messages bound to zero-or-one
// model/provider; Messages are immutable once created except for removal
// during a regenerate-then-rollback sequence, which is owned entirely by
// the statesync package.

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Message is a single entry in a conversation's history. The id is opaque
// and owned by the backend session service once the message is persisted.
type Message struct {
	ID      string    `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

type MessageOption func(*Message)

func WithID(id string) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithTime(t time.Time) MessageOption {
	return func(m *Message) {
		m.Time = t
	}
}

func NewMessage(role Role, content string, options ...MessageOption) *Message {
	ret := &Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
		Time:    time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// View renders the message for display or for a single-prompt context.
func (m *Message) View() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}

// Messages is an ordered message history.
type Messages []*Message

// Clone returns a shallow copy of the list with copied message values, deep
// enough that splicing and content edits on the clone do not leak into the
// original.
func (ms Messages) Clone() Messages {
	ret := make(Messages, len(ms))
	for i, m := range ms {
		m_ := *m
		ret[i] = &m_
	}
	return ret
}

// Last returns the final message, or nil for an empty history.
func (ms Messages) Last() *Message {
	if len(ms) == 0 {
		return nil
	}
	return ms[len(ms)-1]
}

// IndexOf returns the position of the message with the given id, or -1.
func (ms Messages) IndexOf(id string) int {
	for i, m := range ms {
		if m.ID == id {
			return i
		}
	}
	return -1
}
