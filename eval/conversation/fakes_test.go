package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/weatherbot/types"
)

// fakeHarness keeps its own bounded history, like a harness that trims
// to a token budget.
type fakeHarness struct {
	replies  []string
	keep     int
	keyAt    int
	key      string
	panicAt  int
	err      error
	calls    int
	history  []types.Message
	restored []HarnessSnapshot
}

func (h *fakeHarness) Reply(_ context.Context, conv *Conversation) (string, error) {
	h.calls++
	if h.panicAt > 0 && h.calls == h.panicAt {
		panic("harness exploded")
	}
	if h.err != nil {
		return "", h.err
	}
	reply := fmt.Sprintf("assistant reply %d", h.calls)
	if len(h.replies) > 0 {
		reply = h.replies[(h.calls-1)%len(h.replies)]
	}
	if reply == "" {
		return "", nil
	}
	if msg, ok := conv.LastUserMessage(); ok {
		h.history = append(h.history, types.NewUserMessage(msg))
	}
	h.history = append(h.history, types.NewAssistantMessage(reply))
	if h.keep > 0 && len(h.history) > h.keep {
		h.history = h.history[len(h.history)-h.keep:]
	}
	return reply, nil
}

func (h *fakeHarness) Snapshot() HarnessSnapshot {
	attrs := map[string]any{"calls": h.calls}
	if h.key != "" && h.keyAt > 0 && h.calls >= h.keyAt {
		attrs[h.key] = true
	}
	return HarnessSnapshot{Messages: types.CloneMessages(h.history), Attributes: attrs}
}

func (h *fakeHarness) Restore(snap HarnessSnapshot) {
	h.restored = append(h.restored, snap)
	h.history = types.CloneMessages(snap.Messages)
}

// fakeUser replies from a script; an empty script yields numbered replies
// so the repetition guard stays quiet.
type fakeUser struct {
	replies []string
	errAt   int
	calls   int
}

var errUser = errors.New("user model unavailable")

func (u *fakeUser) Reply(context.Context, *Conversation) (string, error) {
	u.calls++
	if u.errAt > 0 && u.calls == u.errAt {
		return "", errUser
	}
	if len(u.replies) == 0 {
		return fmt.Sprintf("user message %d", u.calls), nil
	}
	return u.replies[(u.calls-1)%len(u.replies)], nil
}
