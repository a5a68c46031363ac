package conversation

import (
	"regexp"
	"testing"

	"github.com/BaSui01/weatherbot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 🧪 Conversation 测试
// =============================================================================

func TestNewID(t *testing.T) {
	id := NewID()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), id)
	assert.NotEqual(t, id, NewID())
}

func TestAppend_EnforcesAlternation(t *testing.T) {
	tests := []struct {
		name    string
		roles   []types.Role
		wantErr error
	}{
		{name: "alternating", roles: []types.Role{types.RoleAssistant, types.RoleUser, types.RoleAssistant}},
		{name: "user first", roles: []types.Role{types.RoleUser, types.RoleAssistant}},
		{name: "repeated assistant", roles: []types.Role{types.RoleAssistant, types.RoleAssistant}, wantErr: ErrRoleOrder},
		{name: "repeated user", roles: []types.Role{types.RoleAssistant, types.RoleUser, types.RoleUser}, wantErr: ErrRoleOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			var err error
			for _, r := range tt.roles {
				if err = c.Append(r, "x"); err != nil {
					break
				}
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, len(tt.roles)-1, c.Len())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.roles), c.Len())
		})
	}
}

func TestAppend_RejectsSystemRole(t *testing.T) {
	err := New().Append(types.RoleSystem, "rules")
	assert.Error(t, err)
}

func TestEnd_SetsReasonOnce(t *testing.T) {
	c := New()
	assert.True(t, c.End(ExitRepetition, "repeating response (user)"))
	assert.False(t, c.End(ExitMaxTurns, "later"))

	assert.Equal(t, Ended, c.State())
	assert.Equal(t, ExitRepetition, c.ExitReason())
	assert.Equal(t, "repeating response (user)", c.ExitDetail())
	assert.False(t, c.EndedAt().IsZero())

	assert.ErrorIs(t, c.Append(types.RoleUser, "too late"), ErrEnded)
}

func TestMessages_ReturnsDeepCopies(t *testing.T) {
	c := New()
	require.NoError(t, c.Append(types.RoleUser, "hi"))
	require.NoError(t, c.appendAssistant("hello", HarnessSnapshot{
		Version:    1,
		Messages:   []types.Message{types.NewUserMessage("hi"), types.NewAssistantMessage("hello")},
		Attributes: map[string]any{"visited_agents": []string{"location"}},
	}))

	msgs := c.Messages()
	msgs[1].Snapshot.Messages[0].Content = "tampered"
	msgs[1].Snapshot.Attributes["visited_agents"].([]string)[0] = "tampered"
	msgs[0].Content = "tampered"

	fresh := c.Messages()
	assert.Equal(t, "hi", fresh[0].Content)
	assert.Equal(t, "hi", fresh[1].Snapshot.Messages[0].Content)
	assert.Equal(t, []string{"location"}, fresh[1].Snapshot.Attributes["visited_agents"])

	ctx := c.HarnessContext()
	ctx.Attributes["new"] = 1
	assert.False(t, c.HarnessContext().Has("new"))
}

func TestReplaceLastUserMessage(t *testing.T) {
	c, err := NewWithHistory([]types.Message{
		types.NewAssistantMessage(Greeting),
		types.NewUserMessage("weather in paris"),
	})
	require.NoError(t, err)

	require.NoError(t, c.ReplaceLastUserMessage("weather in rome"))
	msg, ok := c.LastUserMessage()
	require.True(t, ok)
	assert.Equal(t, "weather in rome", msg)

	require.NoError(t, c.Append(types.RoleAssistant, "which rome?"))
	assert.Error(t, c.ReplaceLastUserMessage("nope"))
}

func TestRewind(t *testing.T) {
	c, err := NewWithHistory([]types.Message{types.NewAssistantMessage(Greeting)})
	require.NoError(t, err)
	seed := HarnessSnapshot{Attributes: map[string]any{"seed": true}}
	require.NoError(t, c.start("", CustomerProfile{}, seed))
	require.NoError(t, c.Append(types.RoleUser, "u0"))

	assert.ErrorIs(t, c.Rewind(), ErrNothingToRewind)

	for i, snapAttr := range []string{"turn1", "turn2"} {
		require.NoError(t, c.appendAssistant("a", HarnessSnapshot{Version: i + 1, Attributes: map[string]any{snapAttr: true}}))
		require.NoError(t, c.Append(types.RoleUser, "u"))
		c.completedTurns++
	}
	c.End(ExitMaxTurns, "")

	require.NoError(t, c.Rewind())
	assert.Equal(t, InProgress, c.State())
	assert.Equal(t, ExitNone, c.ExitReason())
	assert.Equal(t, 1, c.CompletedTurns())
	assert.Equal(t, 4, c.Len())
	assert.True(t, c.HarnessContext().Has("turn1"))

	require.NoError(t, c.Rewind())
	assert.Equal(t, 0, c.CompletedTurns())
	assert.True(t, c.HarnessContext().Has("seed"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "not_started", NotStarted.String())
	assert.Equal(t, "in_progress", InProgress.String())
	assert.Equal(t, "ended", Ended.String())
}

func TestTranscript(t *testing.T) {
	c := alternating(t, types.RoleAssistant, Greeting, "Rain in Paris?")
	assert.Equal(t, "ASSISTANT: Hello! How can I help you?\nUSER: Rain in Paris?\n", c.Transcript())
	assert.Empty(t, New().Transcript())
}
