package ai

import (
	"context"

	"github.com/omnix-labs/omnix-voice/internal/model/voice"
)

// Unavailable is the backend used when no model credentials are configured.
// Turns still complete so the session protocol stays exercisable.
type Unavailable struct{}

func (Unavailable) Respond(_ context.Context, _ []voice.Message, _ string) (string, error) {
	return "I apologize, but the AI service is temporarily unavailable. Please check the model configuration.", nil
}
