package llm

import (
	"context"
	"fmt"

	"github.com/BaSui01/weatherbot/types"
)

// FirstChoice safely returns the first choice from a ChatResponse.
// Returns an error if the response is nil or has no choices.
func FirstChoice(resp *ChatResponse) (ChatChoice, error) {
	if resp == nil {
		return ChatChoice{}, fmt.Errorf("nil ChatResponse")
	}
	if len(resp.Choices) == 0 {
		return ChatChoice{}, fmt.Errorf("empty choices in ChatResponse (model returned no choices)")
	}
	return resp.Choices[0], nil
}

// CompleteText sends msgs at the given temperature and returns the text of
// the first choice. A response with no choices yields "" and no error: an
// empty completion is a normal outcome that callers decide how to treat.
func CompleteText(ctx context.Context, p Provider, model string, msgs []Message, temperature float32) (string, error) {
	if p == nil {
		return "", types.NewError(types.ErrProviderNotSet, "llm provider not configured")
	}
	resp, err := p.Completion(ctx, &ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	choice, err := FirstChoice(resp)
	if err != nil {
		return "", nil
	}
	return choice.Message.Content, nil
}
