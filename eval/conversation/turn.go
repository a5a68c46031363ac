package conversation

import (
	"context"

	"github.com/BaSui01/weatherbot/types"
)

// Harness is the assistant under test.
type Harness interface {
	// Reply produces the next assistant message for conv. An empty reply
	// means the harness had nothing to say.
	Reply(ctx context.Context, conv *Conversation) (string, error)
	// Snapshot returns the harness's current view of the dialogue.
	Snapshot() HarnessSnapshot
}

// User is the emulated customer.
type User interface {
	Reply(ctx context.Context, conv *Conversation) (string, error)
}

// Restorer is implemented by harnesses that keep state between turns and
// can be reset to an earlier snapshot.
type Restorer interface {
	Restore(snap HarnessSnapshot)
}

// GenerateTurn runs one assistant reply followed by one user reply.
//
// It returns (false, nil) when the harness replies with an empty string and
// (false, err) when either side fails. Neither case touches conv unless the
// assistant message was already appended before the user failed.
//
// The snapshot attached to the assistant message is built from the view the
// harness held before replying, extended by the latest user message and the
// new reply, so it stays correct when the harness truncates its own history.
func GenerateTurn(ctx context.Context, h Harness, u User, conv *Conversation) (bool, error) {
	prev := h.Snapshot()

	reply, err := h.Reply(ctx, conv)
	if err != nil {
		return false, err
	}
	if reply == "" {
		return false, nil
	}

	msgs := make([]types.Message, 0, len(prev.Messages)+2)
	msgs = append(msgs, prev.Messages...)
	if last, ok := conv.Last(); ok && last.Role == types.RoleUser {
		msgs = append(msgs, last.Plain())
	}
	msgs = append(msgs, types.NewAssistantMessage(reply))

	snap := HarnessSnapshot{
		Version:    conv.CompletedTurns() + 1,
		Messages:   msgs,
		Attributes: cloneMap(h.Snapshot().Attributes),
	}
	if err := conv.appendAssistant(reply, snap); err != nil {
		return false, err
	}

	utterance, err := u.Reply(ctx, conv)
	if err != nil {
		return false, err
	}
	if err := conv.Append(types.RoleUser, utterance); err != nil {
		return false, err
	}
	conv.completedTurns++
	return true, nil
}
