package statesync

// Package statesync implements the state synchronizer at the heart of the
// chat subsystem. It owns the conversation list, the per-conversation
// message cache, the model/provider selection and the UI status flags, and
// mediates every mutation: hydration from the persisted store, catalog
// fetch and selection repair, message send/regenerate with rollback, and
// title generation.
//
// Consumers read state through the accessor methods and mutate exclusively
// through the operation methods; that is what makes the invariants
// enforceable. A serializable projection of the state is written back to
// the persisted store after every settled mutation.

import (
	"github.com/go-go-golems/candlewick/pkg/backend"
	"github.com/go-go-golems/candlewick/pkg/chat"
	"github.com/go-go-golems/candlewick/pkg/events"
	"github.com/go-go-golems/candlewick/pkg/gateway"
	"github.com/go-go-golems/candlewick/pkg/models"
	"github.com/go-go-golems/candlewick/pkg/settings"
	"github.com/go-go-golems/candlewick/pkg/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"sync"
)

// EnablementLoader returns the current per-provider allow-lists. It is
// re-read on every catalog fetch so configuration edits take effect without
// a restart.
type EnablementLoader func() (models.Enablement, error)

// Synchronizer is the single mutable state structure shared by all
// consumers. All exported methods are safe for concurrent use; operations
// on the same conversation are serialized through a per-id lock so that a
// send and a regenerate cannot interleave their splices.
type Synchronizer struct {
	mu sync.RWMutex

	conversations []*chat.Conversation
	messages      map[string]chat.Messages
	fetched       map[string]bool

	selectedConversationID string
	selectedModelID        string
	selectedProvider       models.Provider

	catalog models.Catalog
	// catalogGeneration increases with every fetch; reconciliation passes
	// record the generation they ran against and no-op when a newer one
	// has already run.
	catalogGeneration    uint64
	reconciledGeneration uint64

	hydrated        bool
	isLoadingModels bool
	isSending       bool
	lastError       string

	backend    backend.SessionService
	gateways   *gateway.Registry
	formatter  gateway.Formatter
	store      store.Store
	enablement EnablementLoader
	settings   *settings.Registry
	publisher  *events.PublisherManager

	locks      *keyedMutex
	fetchGroup singleflight.Group

	// test hook, called when fire-and-forget work finishes
	backgroundDone func()
}

type Option func(*Synchronizer)

// WithFormatter replaces the default output formatter.
func WithFormatter(f gateway.Formatter) Option {
	return func(s *Synchronizer) {
		s.formatter = f
	}
}

// WithEnablementLoader sets the source of per-provider allow-lists.
func WithEnablementLoader(l EnablementLoader) Option {
	return func(s *Synchronizer) {
		s.enablement = l
	}
}

// WithPublisher attaches an event publisher manager; without one, state
// events are dropped.
func WithPublisher(p *events.PublisherManager) Option {
	return func(s *Synchronizer) {
		s.publisher = p
	}
}

// WithSettingsRegistry replaces the default per-model settings registry.
func WithSettingsRegistry(r *settings.Registry) Option {
	return func(s *Synchronizer) {
		s.settings = r
	}
}

// WithDefaultProvider sets the provider selected before any catalog has
// been fetched.
func WithDefaultProvider(p models.Provider) Option {
	return func(s *Synchronizer) {
		s.selectedProvider = p
	}
}

func New(svc backend.SessionService, gateways *gateway.Registry, st store.Store, options ...Option) *Synchronizer {
	ret := &Synchronizer{
		messages:         map[string]chat.Messages{},
		fetched:          map[string]bool{},
		selectedProvider: models.DefaultProvider,
		backend:          svc,
		gateways:         gateways,
		formatter:        gateway.DefaultFormatter{},
		store:            st,
		enablement: func() (models.Enablement, error) {
			return models.Enablement{}, nil
		},
		settings: settings.NewRegistry(),
		locks:    newKeyedMutex(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// Conversations returns a copy of the conversation list in display order.
func (s *Synchronizer) Conversations() []*chat.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := make([]*chat.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		c_ := *c
		ret[i] = &c_
	}
	return ret
}

// Messages returns a copy of the cached message history for a conversation.
func (s *Synchronizer) Messages(conversationID string) chat.Messages {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages[conversationID].Clone()
}

// Catalog returns the current filtered model catalog.
func (s *Synchronizer) Catalog() models.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(models.Catalog(nil), s.catalog...)
}

func (s *Synchronizer) SelectedConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedConversationID
}

func (s *Synchronizer) SelectedModelID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedModelID
}

func (s *Synchronizer) SelectedProvider() models.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedProvider
}

// IsHydrated reports whether persisted state has been restored. Consumers
// must wait for it before trusting the selection fields, to avoid a flash
// of an incorrect default.
func (s *Synchronizer) IsHydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

func (s *Synchronizer) IsSending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isSending
}

func (s *Synchronizer) IsLoadingModels() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLoadingModels
}

// Err returns the last classified, human-readable error, or the empty
// string.
func (s *Synchronizer) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Settings exposes the per-model settings registry.
func (s *Synchronizer) Settings() *settings.Registry {
	return s.settings
}

func (s *Synchronizer) conversationByID(id string) (*chat.Conversation, bool) {
	for _, c := range s.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

func (s *Synchronizer) setError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()

	s.publish(events.NewStateEvent(events.EventTypeError).WithError(msg))
}

func (s *Synchronizer) clearError() {
	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()
}

func (s *Synchronizer) publish(event events.StateEvent) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishBlind(event)
}

// save writes the serializable projection to the persisted store. Failures
// are logged, not surfaced: a broken store must not corrupt in-memory state
// or fail the mutation that already settled.
func (s *Synchronizer) save() {
	snapshot := s.snapshot()
	if err := s.store.Save(snapshot); err != nil {
		log.Warn().Err(err).Msg("failed to persist state snapshot")
	}
}

func (s *Synchronizer) snapshot() *store.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversations := make([]*chat.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		c_ := *c
		conversations[i] = &c_
	}

	return &store.Snapshot{
		Conversations:          conversations,
		SelectedConversationID: s.selectedConversationID,
		SelectedModelID:        s.selectedModelID,
		SelectedProvider:       s.selectedProvider,
		Settings:               s.settings.Export(),
	}
}

func (s *Synchronizer) notifyBackgroundDone() {
	if s.backgroundDone != nil {
		s.backgroundDone()
	}
}
