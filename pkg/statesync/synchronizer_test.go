package statesync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/candlewick/pkg/backend"
	"github.com/go-go-golems/candlewick/pkg/chat"
	"github.com/go-go-golems/candlewick/pkg/gateway"
	"github.com/go-go-golems/candlewick/pkg/models"
	"github.com/go-go-golems/candlewick/pkg/settings"
	"github.com/go-go-golems/candlewick/pkg/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGateway is a Gateway whose completions are played back from a
// queue.
type scriptedGateway struct {
	mu          sync.Mutex
	descriptors []models.ModelDescriptor
	listErr     error
	queue       []string
	completeErr error
	histories   []chat.Messages
}

func (g *scriptedGateway) ListModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.descriptors, nil
}

func (g *scriptedGateway) Complete(ctx context.Context, modelID string, history chat.Messages, cfg *settings.ChatSettings) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.histories = append(g.histories, history.Clone())
	if g.completeErr != nil {
		return "", g.completeErr
	}
	if len(g.queue) == 0 {
		return "ok", nil
	}
	head := g.queue[0]
	g.queue = g.queue[1:]
	return head, nil
}

func (g *scriptedGateway) historyCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.histories)
}

// failingBackend wraps the in-memory service with failure injection.
type failingBackend struct {
	backend.SessionService
	createErr error
	appendErr error
	deleteErr error
	deleteOK  *bool
	listErr   error
}

func (f *failingBackend) ListSessions(ctx context.Context) ([]backend.SessionRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.SessionService.ListSessions(ctx)
}

func (f *failingBackend) CreateSession(ctx context.Context, title string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.SessionService.CreateSession(ctx, title)
}

func (f *failingBackend) AppendMessage(ctx context.Context, sessionID string, content string, role chat.Role) (backend.MessageRecord, error) {
	if f.appendErr != nil {
		return backend.MessageRecord{}, f.appendErr
	}
	return f.SessionService.AppendMessage(ctx, sessionID, content, role)
}

func (f *failingBackend) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	if f.deleteOK != nil {
		return *f.deleteOK, nil
	}
	return f.SessionService.DeleteSession(ctx, sessionID)
}

type fixture struct {
	sync       *Synchronizer
	backend    *failingBackend
	store      *store.MemoryStore
	registry   *gateway.Registry
	openai     *scriptedGateway
	ollama     *scriptedGateway
	enablement models.Enablement
	background chan struct{}
}

func newFixture(t *testing.T, options ...Option) *fixture {
	t.Helper()

	f := &fixture{
		backend:    &failingBackend{SessionService: backend.NewMemoryService()},
		store:      store.NewMemoryStore(),
		openai:     &scriptedGateway{},
		ollama:     &scriptedGateway{},
		enablement: models.Enablement{},
		background: make(chan struct{}, 32),
	}

	f.registry = gateway.NewRegistry()
	f.registry.Register(models.ProviderOpenAI, f.openai)
	f.registry.Register(models.ProviderOllama, f.ollama)

	options = append([]Option{
		WithEnablementLoader(func() (models.Enablement, error) {
			return f.enablement, nil
		}),
	}, options...)

	f.sync = New(f.backend, f.registry, f.store, options...)
	f.sync.backgroundDone = func() {
		f.background <- struct{}{}
	}
	return f
}

func (f *fixture) waitBackground(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.background:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for background task %d of %d", i+1, n)
		}
	}
}

func (f *fixture) createConversation(t *testing.T, title string) *chat.Conversation {
	t.Helper()
	c, err := f.sync.CreateConversation(context.Background(), title)
	require.NoError(t, err)
	return c
}

func TestCreateConversationInheritsSelection(t *testing.T) {
	f := newFixture(t)
	f.sync.SetSelectedModel("gpt-4", models.ProviderOpenAI)

	c := f.createConversation(t, "")

	assert.Equal(t, "gpt-4", c.ModelID)
	assert.Equal(t, models.ProviderOpenAI, c.Provider)
	assert.True(t, c.HasDefaultTitle())
	assert.Empty(t, f.sync.Messages(c.ID))

	// new conversations land at the head of the list
	c2 := f.createConversation(t, "second")
	conversations := f.sync.Conversations()
	require.Len(t, conversations, 2)
	assert.Equal(t, c2.ID, conversations[0].ID)
}

func TestCreateConversationFailureLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	f.backend.createErr = errors.New("backend down")

	_, err := f.sync.CreateConversation(context.Background(), "x")
	require.Error(t, err)
	assert.Empty(t, f.sync.Conversations())
	assert.NotEmpty(t, f.sync.Err())
}

func TestListConversationsKeepsLocalFields(t *testing.T) {
	f := newFixture(t)
	f.sync.SetSelectedModel("llama2:7b", models.ProviderOllama)
	c := f.createConversation(t, "keep me")
	f.sync.TogglePin(c.ID)

	err := f.sync.ListConversations(context.Background())
	require.NoError(t, err)

	conversations := f.sync.Conversations()
	require.Len(t, conversations, 1)
	assert.True(t, conversations[0].Pinned)
	assert.Equal(t, "llama2:7b", conversations[0].ModelID)
	assert.Equal(t, models.ProviderOllama, conversations[0].Provider)
}

func TestListConversationsFailureKeepsPriorList(t *testing.T) {
	f := newFixture(t)
	c := f.createConversation(t, "survivor")

	f.backend.listErr = errors.New("unreachable")
	err := f.sync.ListConversations(context.Background())
	require.Error(t, err)

	conversations := f.sync.Conversations()
	require.Len(t, conversations, 1)
	assert.Equal(t, c.ID, conversations[0].ID)
	assert.NotEmpty(t, f.sync.Err())
}

func TestSelectConversationAdoptsGlobalSelection(t *testing.T) {
	f := newFixture(t)
	c := f.createConversation(t, "no model yet")
	f.sync.SetSelectedModel("gpt-4", models.ProviderOpenAI)
	// SetSelectedModel with no selected conversation leaves c unbound
	require.Empty(t, f.sync.Conversations()[0].ModelID)

	f.sync.SelectConversation(context.Background(), c.ID)

	bound := f.sync.Conversations()[0]
	assert.Equal(t, "gpt-4", bound.ModelID)
	assert.Equal(t, models.ProviderOpenAI, bound.Provider)
}

func TestSelectConversationRestoresBinding(t *testing.T) {
	f := newFixture(t)
	f.sync.SetSelectedModel("gpt-4", models.ProviderOpenAI)
	a := f.createConversation(t, "a")
	f.sync.SelectConversation(context.Background(), a.ID)

	f.sync.SetSelectedModel("llama2:7b", models.ProviderOllama)
	b := f.createConversation(t, "b")
	f.sync.SelectConversation(context.Background(), b.ID)
	require.Equal(t, "llama2:7b", f.sync.SelectedModelID())

	// switching back to A restores what was in effect for A
	f.sync.SelectConversation(context.Background(), a.ID)
	assert.Equal(t, "gpt-4", f.sync.SelectedModelID())
	assert.Equal(t, models.ProviderOpenAI, f.sync.SelectedProvider())
}

func TestSelectConversationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.sync.SetSelectedModel("gpt-4", models.ProviderOpenAI)
	c := f.createConversation(t, "c")

	f.sync.SelectConversation(context.Background(), c.ID)
	first := f.sync.Conversations()
	firstModel := f.sync.SelectedModelID()
	firstProvider := f.sync.SelectedProvider()

	f.sync.SelectConversation(context.Background(), c.ID)
	assert.Equal(t, first, f.sync.Conversations())
	assert.Equal(t, firstModel, f.sync.SelectedModelID())
	assert.Equal(t, firstProvider, f.sync.SelectedProvider())
	assert.Equal(t, c.ID, f.sync.SelectedConversationID())
}

func TestSelectConversationKeepsUnknownModelPending(t *testing.T) {
	f := newFixture(t)
	c := f.createConversation(t, "c")

	// bind to a model no catalog knows about
	f.sync.SelectConversation(context.Background(), c.ID)
	f.sync.SetSelectedModel("m9", "")

	require.Equal(t, "m9", f.sync.Conversations()[0].ModelID)
	assert.Equal(t, models.DefaultProvider, f.sync.SelectedProvider())

	// deselect, reselect: the binding is restored even though m9 is not in
	// any catalog
	f.sync.SelectConversation(context.Background(), "")
	f.sync.SelectConversation(context.Background(), c.ID)
	assert.Equal(t, "m9", f.sync.SelectedModelID())
}

func TestSelectConversationFetchesMessagesInBackground(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.backend.CreateSession(ctx, "preexisting")
	require.NoError(t, err)
	_, err = f.backend.AppendMessage(ctx, id, "hello", chat.RoleUser)
	require.NoError(t, err)
	_, err = f.backend.AppendMessage(ctx, id, "hi there", chat.RoleAssistant)
	require.NoError(t, err)

	require.NoError(t, f.sync.ListConversations(ctx))
	f.sync.SelectConversation(ctx, id)
	f.waitBackground(t, 1)

	msgs := f.sync.Messages(id)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi there", f.sync.Conversations()[0].LastMessagePreview)
}

func TestFetchMessagesPersistsRefreshedPreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.backend.CreateSession(ctx, "preexisting")
	require.NoError(t, err)
	_, err = f.backend.AppendMessage(ctx, id, "hello", chat.RoleUser)
	require.NoError(t, err)
	_, err = f.backend.AppendMessage(ctx, id, "hi there", chat.RoleAssistant)
	require.NoError(t, err)

	require.NoError(t, f.sync.ListConversations(ctx))
	f.sync.SelectConversation(ctx, id)
	f.waitBackground(t, 1)

	// the preview derived from the fetched history reaches the snapshot
	// without waiting for another mutation
	snapshot, err := f.store.Load()
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.Len(t, snapshot.Conversations, 1)
	assert.Equal(t, "hi there", snapshot.Conversations[0].LastMessagePreview)
}

func TestTogglePin(t *testing.T) {
	f := newFixture(t)
	c := f.createConversation(t, "c")

	f.sync.TogglePin(c.ID)
	assert.True(t, f.sync.Conversations()[0].Pinned)
	f.sync.TogglePin(c.ID)
	assert.False(t, f.sync.Conversations()[0].Pinned)
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture(t)
	c := f.createConversation(t, "c")
	f.sync.SelectConversation(context.Background(), c.ID)

	err := f.sync.DeleteConversation(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Empty(t, f.sync.Conversations())
	assert.Empty(t, f.sync.Messages(c.ID))
	assert.Empty(t, f.sync.SelectedConversationID())
}

func TestDeleteConversationNoPartialMutationOnFalse(t *testing.T) {
	f := newFixture(t)
	c := f.createConversation(t, "c")
	f.sync.SelectConversation(context.Background(), c.ID)

	refused := false
	f.backend.deleteOK = &refused

	err := f.sync.DeleteConversation(context.Background(), c.ID)
	require.Error(t, err)
	require.Len(t, f.sync.Conversations(), 1)
	assert.Equal(t, c.ID, f.sync.SelectedConversationID())
	assert.NotEmpty(t, f.sync.Err())
}

func TestDeleteConversationNoPartialMutationOnError(t *testing.T) {
	f := newFixture(t)
	c := f.createConversation(t, "c")
	f.sync.SelectConversation(context.Background(), c.ID)
	f.backend.deleteErr = errors.New("backend down")

	err := f.sync.DeleteConversation(context.Background(), c.ID)
	require.Error(t, err)
	require.Len(t, f.sync.Conversations(), 1)
	assert.Equal(t, c.ID, f.sync.SelectedConversationID())
}

func TestSnapshotExcludesMessagesAndFlags(t *testing.T) {
	f := newFixture(t)
	f.sync.SetSelectedModel("gpt-4", models.ProviderOpenAI)
	c := f.createConversation(t, "")
	require.NoError(t, f.sync.SendMessage(context.Background(), c.ID, "hello"))
	f.waitBackground(t, 1) // title generation

	snapshot, err := f.store.Load()
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.Len(t, snapshot.Conversations, 1)
	assert.Equal(t, "gpt-4", snapshot.SelectedModelID)
	assert.Equal(t, models.ProviderOpenAI, snapshot.SelectedProvider)
	// the message cache itself is never persisted, only the derived preview
	assert.NotEmpty(t, f.sync.Messages(c.ID))
	assert.Positive(t, f.store.Saves())
}
