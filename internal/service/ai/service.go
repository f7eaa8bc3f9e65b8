package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/omnix-labs/omnix-voice/internal/config"
	"github.com/omnix-labs/omnix-voice/internal/model/voice"
)

// ErrBackendUnavailable wraps provider failures. The session manager maps it
// to a backend error pushed to the client; it is never retried in a loop.
var ErrBackendUnavailable = errors.New("ai backend unavailable")

const systemPrompt = "You are a helpful voice assistant. " +
	"Be conversational, warm, and concise in your responses. " +
	"Keep responses brief and natural for voice conversation."

const historyLimit = 10

// Backend generates one assistant reply for a user input given prior
// session context. Implementations must honor ctx cancellation.
type Backend interface {
	Respond(ctx context.Context, history []voice.Message, input string) (string, error)
}

// Service runs the conversational model through an eino prompt chain.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    zerolog.Logger
}

// NewService builds the prompt chain over the configured chat model.
func NewService(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		chain:     runnable,
		logger:    logger.With().Str("component", "ai").Logger(),
	}, nil
}

// Respond generates one assistant reply from the session transcript.
func (s *Service) Respond(ctx context.Context, history []voice.Message, input string) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{
		"system":  systemPrompt,
		"history": buildHistoryMessages(history),
		"query":   input,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	s.logger.Debug().Int("length", len(response.Content)).Msg("generated response")
	return response.Content, nil
}

// buildHistoryMessages converts the tail of the session log to model messages.
func buildHistoryMessages(messages []voice.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Role {
		case voice.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case voice.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
