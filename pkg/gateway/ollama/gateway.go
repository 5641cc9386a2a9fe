package ollama

import (
	"context"
	"strings"

	"github.com/go-go-golems/candlewick/pkg/chat"
	"github.com/go-go-golems/candlewick/pkg/gateway"
	"github.com/go-go-golems/candlewick/pkg/models"
	"github.com/go-go-golems/candlewick/pkg/settings"
	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Gateway serves a local ollama daemon.
type Gateway struct {
	client *api.Client
}

var _ gateway.Gateway = (*Gateway)(nil)

func NewGateway(client *api.Client) *Gateway {
	return &Gateway{client: client}
}

// NewGatewayFromEnvironment builds a gateway against the daemon address in
// OLLAMA_HOST, falling back to the default local address.
func NewGatewayFromEnvironment() (*Gateway, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(gateway.ErrProviderNotConfigured, err.Error())
	}
	return &Gateway{client: client}, nil
}

func (g *Gateway) ListModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	resp, err := g.client.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "ollama list models")
	}

	ret := make([]models.ModelDescriptor, 0, len(resp.Models))
	for _, m := range resp.Models {
		ret = append(ret, models.ModelDescriptor{
			ID:            m.Name,
			Provider:      models.ProviderOllama,
			DisplayName:   m.Name,
			ParameterSize: m.Details.ParameterSize,
		})
	}
	return ret, nil
}

func (g *Gateway) Complete(ctx context.Context, modelID string, history chat.Messages, cfg *settings.ChatSettings) (string, error) {
	ollamaMessages := make([]api.Message, 0, len(history)+1)
	if cfg != nil && cfg.SystemPrompt != nil && *cfg.SystemPrompt != "" {
		ollamaMessages = append(ollamaMessages, api.Message{
			Role:    string(chat.RoleSystem),
			Content: *cfg.SystemPrompt,
		})
	}
	for _, m := range history {
		ollamaMessages = append(ollamaMessages, api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	options := map[string]interface{}{}
	if cfg != nil {
		if cfg.Temperature != nil {
			options["temperature"] = *cfg.Temperature
		}
		if cfg.MaxResponseTokens != nil {
			options["num_predict"] = *cfg.MaxResponseTokens
		}
	}

	stream := true
	req := &api.ChatRequest{
		Model:    modelID,
		Messages: ollamaMessages,
		Stream:   &stream,
		Options:  options,
	}

	var completion strings.Builder
	err := g.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		completion.WriteString(resp.Message.Content)
		if resp.Done {
			log.Trace().
				Str("model", modelID).
				Int("completion_len", completion.Len()).
				Msg("ollama completion finished")
		}
		return nil
	})
	if err != nil {
		return "", classifyError(err, modelID)
	}

	return completion.String(), nil
}

func classifyError(err error, modelID string) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "model") && strings.Contains(msg, "not found") {
		return errors.Wrapf(gateway.ErrModelNotFound, "model %s", modelID)
	}
	if strings.Contains(msg, "connection refused") {
		return errors.Wrap(gateway.ErrProviderNotConfigured, "ollama daemon unreachable")
	}
	return errors.Wrap(err, "ollama completion")
}
