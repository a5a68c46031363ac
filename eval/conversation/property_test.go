package conversation

import (
	"context"
	"testing"

	"github.com/BaSui01/weatherbot/types"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// 每轮恰好追加一条助手消息和一条用户消息；快照等于助手回复前的视图
// 加上最新一对消息，即使 harness 自己截断了历史。
func TestProperty_TurnInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxTurns := rapid.IntRange(1, 10).Draw(rt, "maxTurns")
		keep := rapid.IntRange(0, 6).Draw(rt, "keep")

		h := &fakeHarness{keep: keep}
		g := NewGenerator(h, &fakeUser{}, WithMaxTurns(maxTurns))
		conv := g.GenerateConversation(context.Background(), CustomerProfile{}, "")

		require.Equal(rt, ExitMaxTurns, conv.ExitReason())
		k := conv.CompletedTurns()
		require.Equal(rt, maxTurns-1, k)
		require.Equal(rt, 1+2*k+1, conv.Len())
		require.Equal(rt, h.calls, k)

		msgs := conv.Messages()
		plain := conv.PlainMessages()
		full := plain[1:]
		for i, m := range msgs {
			if i == 0 || m.Role == types.RoleUser {
				require.Nil(rt, m.Snapshot)
				continue
			}
			turn := i / 2
			require.NotNil(rt, m.Snapshot)
			require.Equal(rt, turn, m.Snapshot.Version)

			before := full[:2*turn-2]
			if keep > 0 && len(before) > keep {
				before = before[len(before)-keep:]
			}
			want := append(types.CloneMessages(before), full[2*turn-2:2*turn]...)
			require.Equal(rt, want, m.Snapshot.Messages)
		}
	})
}
