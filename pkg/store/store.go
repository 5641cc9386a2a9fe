package store

// Package store persists the serializable projection of the synchronizer's
// state: conversations with their model bindings, the current selection, and
// session settings. Loading flags, errors, and the message cache are
// deliberately excluded; messages are re-fetched per conversation on demand.

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-go-golems/candlewick/pkg/chat"
	"github.com/go-go-golems/candlewick/pkg/models"
	"github.com/go-go-golems/candlewick/pkg/settings"
	"github.com/pkg/errors"
)

// Snapshot is the strict subset of state that survives restarts.
type Snapshot struct {
	Conversations          []*chat.Conversation              `json:"conversations"`
	SelectedConversationID string                            `json:"selectedConversationId,omitempty"`
	SelectedModelID        string                            `json:"selectedModelId,omitempty"`
	SelectedProvider       models.Provider                   `json:"selectedProvider,omitempty"`
	Settings               map[string]*settings.ChatSettings `json:"settings,omitempty"`
}

// Store is the durable key-value collaborator. Load returns nil when no
// snapshot has been written yet. Implementations must be safe for
// concurrent use; the synchronizer saves from background goroutines.
type Store interface {
	Load() (*Snapshot, error)
	Save(*Snapshot) error
}

// FileStore keeps the snapshot in a single JSON file, written atomically.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns the conventional snapshot location under the user's
// home directory.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".candlewick", "state.json")
}

func (s *FileStore) Load() (*Snapshot, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not read snapshot %s", s.path)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(b, &snapshot); err != nil {
		return nil, errors.Wrapf(err, "could not parse snapshot %s", s.path)
	}
	return &snapshot, nil
}

func (s *FileStore) Save(snapshot *Snapshot) error {
	if snapshot == nil {
		return errors.New("snapshot is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "could not create snapshot directory")
	}

	b, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not serialize snapshot")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errors.Wrapf(err, "could not write snapshot %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(err, "could not replace snapshot %s", s.path)
	}
	return nil
}

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu       sync.Mutex
	snapshot *Snapshot
	saves    int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, nil
}

func (s *MemoryStore) Save(snapshot *Snapshot) error {
	// round-trip through JSON so the stored copy cannot alias live state
	b, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	var copied Snapshot
	if err := json.Unmarshal(b, &copied); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = &copied
	s.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Seed sets the snapshot returned by the next Load.
func (s *MemoryStore) Seed(snapshot *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
}
