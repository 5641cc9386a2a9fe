package backend

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-go-golems/candlewick/pkg/chat"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MemoryService is an in-process SessionService. It backs the local chat
// command and the statesync tests.
type MemoryService struct {
	mu       sync.Mutex
	sessions map[string]*SessionRecord
	messages map[string][]MessageRecord
}

var _ SessionService = (*MemoryService)(nil)

func NewMemoryService() *MemoryService {
	return &MemoryService{
		sessions: map[string]*SessionRecord{},
		messages: map[string][]MessageRecord{},
	}
}

func (s *MemoryService) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ret := make([]SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		ret = append(ret, *rec)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].UpdatedAt.After(ret[j].UpdatedAt)
	})
	return ret, nil
}

func (s *MemoryService) CreateSession(ctx context.Context, title string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.sessions[id] = &SessionRecord{
		ID:        id,
		Title:     title,
		UpdatedAt: time.Now(),
	}
	s.messages[id] = nil
	return id, nil
}

func (s *MemoryService) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return false, nil
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	return true, nil
}

func (s *MemoryService) ListMessages(ctx context.Context, sessionID string) ([]MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, errors.Errorf("unknown session %s", sessionID)
	}
	return append([]MessageRecord(nil), s.messages[sessionID]...), nil
}

func (s *MemoryService) AppendMessage(ctx context.Context, sessionID string, content string, role chat.Role) (MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return MessageRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return MessageRecord{}, errors.Errorf("unknown session %s", sessionID)
	}

	msg := MessageRecord{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
		Time:    time.Now(),
	}
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	rec.UpdatedAt = msg.Time
	return msg, nil
}

func (s *MemoryService) UpdateSessionTitle(ctx context.Context, sessionID string, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return errors.Errorf("unknown session %s", sessionID)
	}
	rec.Title = title
	return nil
}
