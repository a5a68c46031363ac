package conversation

import (
	"strings"
	"testing"

	"github.com/BaSui01/weatherbot/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 🧪 中断条件测试
// =============================================================================

func alternating(t testing.TB, first types.Role, contents ...string) *Conversation {
	t.Helper()
	c := New()
	role := first
	for _, s := range contents {
		require.NoError(t, c.Append(role, s))
		role = role.Flip()
	}
	return c
}

func TestConversationInterrupted(t *testing.T) {
	tests := []struct {
		name       string
		first      types.Role
		contents   []string
		wantHit    bool
		wantReason ExitReason
		wantDetail string
	}{
		{name: "too short", first: types.RoleAssistant, contents: []string{"a", "u", "a"}},
		{name: "distinct", first: types.RoleAssistant, contents: []string{"a1", "u1", "a2", "u2"}},
		{
			name: "assistant repeats", first: types.RoleAssistant,
			contents: []string{"Where?", "u1", "where?", "u2"},
			wantHit:  true, wantReason: ExitRepetition, wantDetail: "repeating response (assistant)",
		},
		{
			name: "user repeats", first: types.RoleUser,
			contents: []string{"Seattle", "a1", "seattle", "a2"},
			wantHit:  true, wantReason: ExitRepetition, wantDetail: "repeating response (user)",
		},
		{
			name: "only the latest pair counts", first: types.RoleAssistant,
			contents: []string{"same", "u1", "same", "u2", "other", "u3"},
		},
		{
			name: "sentinel", first: types.RoleAssistant,
			contents: []string{"a1", "ok @Done@ bye"},
			wantHit:  true, wantReason: ExitUserToken,
		},
		{
			name: "sentinel before repetition", first: types.RoleAssistant,
			contents: []string{"a", "@done@", "a", "@done@"},
			wantHit:  true, wantReason: ExitUserToken,
		},
		{
			name: "sentinel only in assistant", first: types.RoleAssistant,
			contents: []string{"say @done@ when finished", "u1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := alternating(t, tt.first, tt.contents...)
			in, hit := ConversationInterrupted(c)
			assert.Equal(t, tt.wantHit, hit)
			assert.Equal(t, tt.wantReason, in.Reason)
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, in.Detail)
			}
		})
	}
}

func TestTestCaseInterrupted(t *testing.T) {
	c := New()
	require.NoError(t, c.start("", CustomerProfile{}, HarnessSnapshot{Attributes: map[string]any{"location": "47.6,-122.3"}}))

	_, hit := TestCaseInterrupted(c, "")
	assert.False(t, hit)
	_, hit = TestCaseInterrupted(c, "weather_category")
	assert.False(t, hit)

	in, hit := TestCaseInterrupted(c, "location")
	assert.True(t, hit)
	assert.Equal(t, ExitTestCaseKey, in.Reason)
	assert.Contains(t, in.Detail, "location")
}

// 重复检测只看每个角色最近两条消息。
func TestProperty_RepetitionGuard(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	word := gen.OneConstOf("hi", "HI", "bye", "Seattle", "seattle", "ok")

	properties.Property("fires exactly when a role repeats its previous message", prop.ForAll(
		func(contents []string, userFirst bool) bool {
			first := types.RoleAssistant
			if userFirst {
				first = types.RoleUser
			}
			c := alternating(t, first, contents...)
			in, hit := repeating(c)

			want := ""
			if n := len(contents); n >= 4 {
				// alternation puts each role's previous message two slots back
				lastTwo := func(end int) bool { return strings.EqualFold(contents[end], contents[end-2]) }
				a, u := n-1, n-2
				if c.messages[n-1].Role == types.RoleUser {
					a, u = n-2, n-1
				}
				switch {
				case lastTwo(a):
					want = "repeating response (assistant)"
				case lastTwo(u):
					want = "repeating response (user)"
				}
			}
			if want == "" {
				return !hit
			}
			return hit && in.Reason == ExitRepetition && in.Detail == want
		},
		gen.SliceOf(word),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
