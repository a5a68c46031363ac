package user

import (
	"context"
	"strings"

	"github.com/BaSui01/weatherbot/eval/conversation"
	"github.com/BaSui01/weatherbot/llm"
	"github.com/BaSui01/weatherbot/types"
)

// DefaultTemperature keeps emulated customers varied between runs.
const DefaultTemperature float32 = 0.7

// CustomerChat plays the customer side of a conversation with an LLM.
type CustomerChat struct {
	provider    llm.Provider
	model       string
	temperature float32
}

// ChatOption configures a CustomerChat.
type ChatOption func(*CustomerChat)

// WithTemperature overrides DefaultTemperature.
func WithTemperature(t float32) ChatOption {
	return func(c *CustomerChat) { c.temperature = t }
}

// NewCustomerChat creates an emulated customer backed by provider.
func NewCustomerChat(provider llm.Provider, model string, opts ...ChatOption) *CustomerChat {
	c := &CustomerChat{provider: provider, model: model, temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SystemMessage renders the customer's instructions for conv: the
// scenario template when conv has a scenario, the general one otherwise.
func (c *CustomerChat) SystemMessage(conv *conversation.Conversation) string {
	profile := conv.CustomerProfile().Prompt
	if scenario := conv.ScenarioPrompt(); scenario != "" {
		return strings.NewReplacer(
			"{customer_profile}", profile,
			"{scenario_prompt}", scenario,
		).Replace(scenarioTemplate)
	}
	return strings.ReplaceAll(generalTemplate, "{customer_profile}", profile)
}

// Messages builds the request history: the system message followed by the
// conversation with user and assistant swapped, so the model speaks as the
// customer.
func (c *CustomerChat) Messages(conv *conversation.Conversation) []types.Message {
	history := conv.PlainMessages()
	msgs := make([]types.Message, 0, len(history)+1)
	if sys := c.SystemMessage(conv); sys != "" {
		msgs = append(msgs, types.NewSystemMessage(sys))
	}
	for _, m := range history {
		msgs = append(msgs, types.NewMessage(m.Role.Flip(), m.Content))
	}
	return msgs
}

// Reply implements conversation.User.
func (c *CustomerChat) Reply(ctx context.Context, conv *conversation.Conversation) (string, error) {
	return llm.CompleteText(ctx, c.provider, c.model, c.Messages(conv), c.temperature)
}

// Fixed always replies with the same text.
type Fixed string

// Reply implements conversation.User.
func (f Fixed) Reply(context.Context, *conversation.Conversation) (string, error) {
	return string(f), nil
}

// Func adapts a function to conversation.User.
type Func func(ctx context.Context, conv *conversation.Conversation) (string, error)

// Reply implements conversation.User.
func (f Func) Reply(ctx context.Context, conv *conversation.Conversation) (string, error) {
	return f(ctx, conv)
}
