package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/candlewick/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateEventBuilders(t *testing.T) {
	e := NewStateEvent(EventTypeError).
		WithConversation("c1").
		WithModel("gpt-4", models.ProviderOpenAI).
		WithError("Model gpt-4 is not available, please choose another model")

	assert.Equal(t, EventTypeError, e.Type)
	assert.Equal(t, "c1", e.ConversationID)
	assert.Equal(t, "gpt-4", e.ModelID)
	assert.Equal(t, models.ProviderOpenAI, e.Provider)
	assert.Equal(t, "Model gpt-4 is not available, please choose another model", e.Error)
	assert.False(t, e.Time.IsZero())
}

func TestPublisherManagerFanOut(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer func() {
		_ = pubSub.Close()
	}()

	messages, err := pubSub.Subscribe(context.Background(), "state")
	require.NoError(t, err)

	manager := NewPublisherManager()
	manager.SubscribePublisher("state", pubSub)

	event := NewStateEvent(EventTypeSelectionChanged).WithConversation("c1")
	manager.PublishBlind(event)

	select {
	case msg := <-messages:
		assert.Equal(t, "0", msg.Metadata.Get("sequence_number"))
		assert.Equal(t, string(EventTypeSelectionChanged), msg.Metadata.Get("event_type"))

		var received StateEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &received))
		assert.Equal(t, "c1", received.ConversationID)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestPublisherManagerSequenceNumbers(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer func() {
		_ = pubSub.Close()
	}()

	messages, err := pubSub.Subscribe(context.Background(), "state")
	require.NoError(t, err)

	manager := NewPublisherManager()
	manager.SubscribePublisher("state", pubSub)

	manager.PublishBlind(NewStateEvent(EventTypeHydrated))
	first := <-messages
	first.Ack()

	manager.PublishBlind(NewStateEvent(EventTypeCatalogUpdated))
	second := <-messages
	second.Ack()

	assert.Equal(t, "0", first.Metadata.Get("sequence_number"))
	assert.Equal(t, "1", second.Metadata.Get("sequence_number"))
}
