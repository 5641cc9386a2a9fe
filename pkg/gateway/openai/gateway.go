package openai

import (
	"context"
	"strings"

	"github.com/go-go-golems/candlewick/pkg/chat"
	"github.com/go-go-golems/candlewick/pkg/gateway"
	"github.com/go-go-golems/candlewick/pkg/models"
	"github.com/go-go-golems/candlewick/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// Gateway serves the OpenAI API (and OpenAI-compatible endpoints reachable
// through a base URL override).
type Gateway struct {
	client *go_openai.Client
}

var _ gateway.Gateway = (*Gateway)(nil)

type Option func(*config)

type config struct {
	baseURL string
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

func NewGateway(apiKey string, options ...Option) (*Gateway, error) {
	if apiKey == "" {
		return nil, errors.Wrap(gateway.ErrProviderNotConfigured, "no openai api key")
	}

	cfg := &config{}
	for _, option := range options {
		option(cfg)
	}

	clientConfig := go_openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		clientConfig.BaseURL = cfg.baseURL
	}

	return &Gateway{
		client: go_openai.NewClientWithConfig(clientConfig),
	}, nil
}

func (g *Gateway) ListModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	resp, err := g.client.ListModels(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "openai list models")
	}

	ret := make([]models.ModelDescriptor, 0, len(resp.Models))
	for _, m := range resp.Models {
		ret = append(ret, models.ModelDescriptor{
			ID:          m.ID,
			Provider:    models.ProviderOpenAI,
			DisplayName: m.ID,
		})
	}
	return ret, nil
}

func (g *Gateway) Complete(ctx context.Context, modelID string, history chat.Messages, cfg *settings.ChatSettings) (string, error) {
	req := go_openai.ChatCompletionRequest{
		Model:    modelID,
		Messages: toOpenAIMessages(history, cfg),
	}
	if cfg != nil {
		if cfg.Temperature != nil {
			req.Temperature = float32(*cfg.Temperature)
		}
		if cfg.MaxResponseTokens != nil {
			req.MaxTokens = *cfg.MaxResponseTokens
		}
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyError(err, modelID)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	log.Trace().
		Str("model", modelID).
		Int("history_len", len(history)).
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Msg("openai completion finished")

	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(history chat.Messages, cfg *settings.ChatSettings) []go_openai.ChatCompletionMessage {
	ret := make([]go_openai.ChatCompletionMessage, 0, len(history)+1)
	if cfg != nil && cfg.SystemPrompt != nil && *cfg.SystemPrompt != "" {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: *cfg.SystemPrompt,
		})
	}
	for _, m := range history {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return ret
}

func classifyError(err error, modelID string) error {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 404 ||
			strings.Contains(strings.ToLower(apiErr.Message), "model") &&
				strings.Contains(strings.ToLower(apiErr.Message), "does not exist") {
			return errors.Wrapf(gateway.ErrModelNotFound, "model %s: %s", modelID, apiErr.Message)
		}
		if apiErr.HTTPStatusCode == 401 {
			return errors.Wrap(gateway.ErrProviderNotConfigured, apiErr.Message)
		}
	}
	return errors.Wrap(err, "openai completion")
}
