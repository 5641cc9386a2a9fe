package backend

// Package backend defines the contract of the durable session service that
// owns conversation and message records. The synchronizer treats it as the
// source of truth for existence: deletes only take effect locally when the
// service confirms them.

import (
	"context"
	"time"

	"github.com/go-go-golems/candlewick/pkg/chat"
)

// SessionRecord is a conversation as the backend stores it.
type SessionRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MessageRecord is a message as the backend stores it. The backend assigns
// the id on append.
type MessageRecord struct {
	ID      string    `json:"id"`
	Role    chat.Role `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// SessionService exposes the durable session and message operations. All
// calls are fallible; none are assumed idempotent except DeleteSession,
// whose boolean result is authoritative.
type SessionService interface {
	ListSessions(ctx context.Context) ([]SessionRecord, error)
	CreateSession(ctx context.Context, title string) (string, error)
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
	ListMessages(ctx context.Context, sessionID string) ([]MessageRecord, error)
	AppendMessage(ctx context.Context, sessionID string, content string, role chat.Role) (MessageRecord, error)
	UpdateSessionTitle(ctx context.Context, sessionID string, title string) error
}
