package statesync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-go-golems/candlewick/pkg/chat"
	"github.com/go-go-golems/candlewick/pkg/events"
	"github.com/go-go-golems/candlewick/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const titleMaxLen = 60

// generateTitle asks the model for a short conversation title after the
// first exchange. It runs off the send path; every failure is logged and
// swallowed, the conversation simply keeps its placeholder title.
func (s *Synchronizer) generateTitle(ctx context.Context, conversationID string, userText string, assistantText string, provider models.Provider, modelID string) {
	prompt := fmt.Sprintf(
		"Generate a concise title (at most five words) for a conversation that starts like this. Reply with the title only.\n\nUser: %s\nAssistant: %s",
		chat.Preview(userText), chat.Preview(assistantText),
	)
	history := chat.Messages{chat.NewMessage(chat.RoleUser, prompt)}

	raw, err := s.gateways.Complete(ctx, provider, modelID, history, s.settings.Get(modelID))
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("title generation failed")
		return
	}

	title := cleanTitle(s.formatter.Clean(raw))
	if title == "" {
		log.Warn().Str("conversation_id", conversationID).Msg("title generation produced empty title")
		return
	}

	if err := s.backend.UpdateSessionTitle(ctx, conversationID, title); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("could not persist generated title")
		return
	}

	s.mu.Lock()
	c, ok := s.conversationByID(conversationID)
	if ok {
		c.Title = title
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.save()
	s.publish(events.NewStateEvent(events.EventTypeConversationUpdated).WithConversation(conversationID))
	log.Debug().Str("conversation_id", conversationID).Str("title", title).Msg("conversation title generated")
}

func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'`)
	title = strings.Join(strings.Fields(title), " ")
	runes := []rune(title)
	if len(runes) > titleMaxLen {
		title = strings.TrimSpace(string(runes[:titleMaxLen]))
	}
	return title
}

type conversationExport struct {
	Conversation *chat.Conversation `json:"conversation"`
	Messages     chat.Messages      `json:"messages"`
}

// SaveConversationToFile exports a single conversation and its cached
// messages as indented JSON, for archival outside the snapshot store.
func (s *Synchronizer) SaveConversationToFile(conversationID string, path string) error {
	s.mu.RLock()
	c, ok := s.conversationByID(conversationID)
	if !ok {
		s.mu.RUnlock()
		return errors.Errorf("unknown conversation %s", conversationID)
	}
	export := conversationExport{
		Conversation: c,
		Messages:     s.messages[conversationID].Clone(),
	}
	c_ := *export.Conversation
	export.Conversation = &c_
	s.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "could not create %s", path)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return errors.Wrap(err, "could not encode conversation")
	}
	return nil
}
