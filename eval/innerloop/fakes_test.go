package innerloop

import (
	"context"
	"fmt"

	"github.com/BaSui01/weatherbot/eval/conversation"
)

type scriptHarness struct{ calls int }

func (h *scriptHarness) Reply(context.Context, *conversation.Conversation) (string, error) {
	h.calls++
	return fmt.Sprintf("assistant %d", h.calls), nil
}

func (h *scriptHarness) Snapshot() conversation.HarnessSnapshot {
	return conversation.HarnessSnapshot{Attributes: map[string]any{"visited_agents": []string{"WeatherAgent"}}}
}

type scriptUser struct{ calls int }

func (u *scriptUser) Reply(context.Context, *conversation.Conversation) (string, error) {
	u.calls++
	return fmt.Sprintf("user %d", u.calls), nil
}
