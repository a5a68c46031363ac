package location

import (
	"context"
	"fmt"

	"github.com/BaSui01/weatherbot/llm"
	"github.com/BaSui01/weatherbot/types"
)

// Assistant asks the user for whatever location details are missing.
type Assistant struct {
	provider llm.Provider
	model    string
}

// NewAssistant creates a location assistant.
func NewAssistant(provider llm.Provider, model string) *Assistant {
	return &Assistant{provider: provider, model: model}
}

// Reply answers the history with a question about the user's location.
func (a *Assistant) Reply(ctx context.Context, history []types.Message) (string, error) {
	msgs := make([]types.Message, 0, len(history)+1)
	msgs = append(msgs, types.NewSystemMessage(AssistantSystemPrompt()))
	msgs = append(msgs, history...)
	reply, err := llm.CompleteText(ctx, a.provider, a.model, msgs, 0)
	if err != nil {
		return "", fmt.Errorf("location assistant: %w", err)
	}
	return reply, nil
}
