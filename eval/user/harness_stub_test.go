package user

import (
	"context"

	"github.com/BaSui01/weatherbot/eval/conversation"
)

type staticHarness struct{}

func (staticHarness) Reply(context.Context, *conversation.Conversation) (string, error) {
	return "ok", nil
}

func (staticHarness) Snapshot() conversation.HarnessSnapshot { return conversation.HarnessSnapshot{} }
