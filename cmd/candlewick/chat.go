package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/candlewick/pkg/backend"
	"github.com/go-go-golems/candlewick/pkg/events"
	"github.com/go-go-golems/candlewick/pkg/gateway"
	"github.com/go-go-golems/candlewick/pkg/gateway/ollama"
	"github.com/go-go-golems/candlewick/pkg/gateway/openai"
	"github.com/go-go-golems/candlewick/pkg/models"
	"github.com/go-go-golems/candlewick/pkg/statesync"
	"github.com/go-go-golems/candlewick/pkg/store"
)

func gatewayConfig() gateway.Config {
	apiKey := viper.GetString("openai-api-key")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return gateway.Config{
		OpenAIAPIKey:  apiKey,
		OpenAIBaseURL: viper.GetString("openai-base-url"),
		OllamaEnabled: viper.GetBool("ollama"),
	}
}

func buildRegistry() (*gateway.Registry, error) {
	factory := gateway.NewFactory()
	factory.RegisterBuilder(models.ProviderOpenAI, func(cfg gateway.Config) (gateway.Gateway, error) {
		var options []openai.Option
		if cfg.OpenAIBaseURL != "" {
			options = append(options, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		return openai.NewGateway(cfg.OpenAIAPIKey, options...)
	})
	factory.RegisterBuilder(models.ProviderOllama, func(cfg gateway.Config) (gateway.Gateway, error) {
		if !cfg.OllamaEnabled {
			return nil, gateway.ErrProviderNotConfigured
		}
		return ollama.NewGatewayFromEnvironment()
	})

	return factory.Build(gatewayConfig())
}

func statePath() string {
	if path := viper.GetString("state-file"); path != "" {
		return path
	}
	return store.DefaultPath()
}

func modelsPath() string {
	if path := viper.GetString("models-file"); path != "" {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".candlewick", "models.yaml")
}

func buildSynchronizer() (*statesync.Synchronizer, error) {
	registry, err := buildRegistry()
	if err != nil {
		return nil, err
	}

	publisher := events.NewPublisherManager()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	publisher.SubscribePublisher("state", pubSub)

	modelsFile := modelsPath()
	s := statesync.New(
		backend.NewMemoryService(),
		registry,
		store.NewFileStore(statePath()),
		statesync.WithPublisher(publisher),
		statesync.WithEnablementLoader(func() (models.Enablement, error) {
			return models.LoadEnablement(modelsFile)
		}),
	)
	return s, nil
}

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat with conversation and model state kept in sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildSynchronizer()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := s.Hydrate(ctx); err != nil {
				log.Warn().Err(err).Msg("starting with empty state")
			}

			if s.SelectedConversationID() == "" {
				c, err := s.CreateConversation(ctx, "")
				if err != nil {
					return err
				}
				s.SelectConversation(ctx, c.ID)
			}

			return runRepl(ctx, s)
		},
	}
}

const replHelp = `commands:
  /new [title]      create a conversation and select it
  /list             list conversations
  /select <id>      select a conversation
  /models           list available models
  /model <id>       select a model
  /pin <id>         toggle a conversation pin
  /delete <id>      delete a conversation
  /regen <msg-id>   regenerate an assistant message
  /export <path>    export the selected conversation as JSON
  /quit             exit
anything else is sent as a message`

func runRepl(ctx context.Context, s *statesync.Synchronizer) error {
	fmt.Println(replHelp)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := runCommand(ctx, s, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %s\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := s.SendMessage(ctx, s.SelectedConversationID(), line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %s\n", s.Err())
			continue
		}
		msgs := s.Messages(s.SelectedConversationID())
		if last := msgs.Last(); last != nil {
			fmt.Println(last.View())
		}
	}
}

func runCommand(ctx context.Context, s *statesync.Synchronizer, line string) (bool, error) {
	fields := strings.Fields(line)
	command := fields[0]
	arg := strings.TrimSpace(strings.TrimPrefix(line, command))

	switch command {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		c, err := s.CreateConversation(ctx, arg)
		if err != nil {
			return false, err
		}
		s.SelectConversation(ctx, c.ID)
		fmt.Printf("selected %s\n", c.ID)

	case "/list":
		for _, c := range s.Conversations() {
			marker := " "
			if c.ID == s.SelectedConversationID() {
				marker = "*"
			}
			pin := ""
			if c.Pinned {
				pin = " [pinned]"
			}
			fmt.Printf("%s %s  %s%s\n", marker, c.ID, c.Title, pin)
		}

	case "/select":
		s.SelectConversation(ctx, arg)

	case "/models":
		if err := s.FetchAvailableModels(ctx); err != nil {
			return false, err
		}
		for _, m := range s.Catalog() {
			marker := " "
			if m.ID == s.SelectedModelID() {
				marker = "*"
			}
			fmt.Printf("%s %-12s %s\n", marker, m.Provider, m.ID)
		}

	case "/model":
		s.SetSelectedModel(arg, "")
		fmt.Printf("using %s (%s)\n", s.SelectedModelID(), s.SelectedProvider())

	case "/pin":
		s.TogglePin(arg)

	case "/delete":
		if err := s.DeleteConversation(ctx, arg); err != nil {
			return false, err
		}

	case "/regen":
		if err := s.RegenerateResponse(ctx, s.SelectedConversationID(), arg); err != nil {
			return false, err
		}
		msgs := s.Messages(s.SelectedConversationID())
		if last := msgs.Last(); last != nil {
			fmt.Println(last.View())
		}

	case "/export":
		if arg == "" {
			return false, fmt.Errorf("usage: /export <path>")
		}
		if err := s.SaveConversationToFile(s.SelectedConversationID(), arg); err != nil {
			return false, err
		}
		fmt.Printf("exported to %s\n", arg)

	default:
		fmt.Println(replHelp)
	}

	return false, nil
}

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available across configured providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := buildRegistry()
			if err != nil {
				return err
			}

			enablement, err := models.LoadEnablement(modelsPath())
			if err != nil {
				return err
			}

			catalog, err := registry.ListModels(cmd.Context())
			if err != nil {
				return err
			}

			for _, m := range enablement.Filter(catalog) {
				size := m.ParameterSize
				if size == "" {
					size = "-"
				}
				fmt.Printf("%-12s %-40s %s\n", m.Provider, m.ID, size)
			}
			return nil
		},
	}
}
