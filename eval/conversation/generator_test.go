package conversation

import (
	"errors"
	"testing"

	"github.com/BaSui01/weatherbot/internal/metrics"
	"github.com/BaSui01/weatherbot/testutil"
	"github.com/BaSui01/weatherbot/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// =============================================================================
// 🧪 Generator 测试
// =============================================================================

func TestGenerator_Defaults(t *testing.T) {
	g := NewGenerator(&fakeHarness{}, &fakeUser{}, WithMaxTurns(0))
	assert.Equal(t, DefaultMaxTurns, g.MaxTurns())
}

func TestGenerator_Run(t *testing.T) {
	tests := []struct {
		name       string
		harness    *fakeHarness
		user       *fakeUser
		maxTurns   int
		key        string
		wantReason ExitReason
		wantDetail string
		wantCalls  int
		wantTurns  int
	}{
		{
			name:       "max turns of two runs a single turn",
			harness:    &fakeHarness{},
			user:       &fakeUser{},
			maxTurns:   2,
			wantReason: ExitMaxTurns,
			wantCalls:  1,
			wantTurns:  1,
		},
		{
			name:       "default limit",
			harness:    &fakeHarness{},
			user:       &fakeUser{},
			wantReason: ExitMaxTurns,
			wantCalls:  DefaultMaxTurns - 1,
			wantTurns:  DefaultMaxTurns - 1,
		},
		{
			name:       "sentinel token in any case",
			harness:    &fakeHarness{},
			user:       &fakeUser{replies: []string{"opener", "Thanks, @DONE@"}},
			wantReason: ExitUserToken,
			wantCalls:  1,
			wantTurns:  1,
		},
		{
			name:       "repeating assistant",
			harness:    &fakeHarness{replies: []string{"Which city?"}},
			user:       &fakeUser{},
			wantReason: ExitRepetition,
			wantDetail: "repeating response (assistant)",
			wantCalls:  2,
			wantTurns:  2,
		},
		{
			name:       "repeating user ignores case",
			harness:    &fakeHarness{},
			user:       &fakeUser{replies: []string{"opener", "Seattle", "SEATTLE"}},
			wantReason: ExitRepetition,
			wantDetail: "repeating response (user)",
			wantCalls:  2,
			wantTurns:  2,
		},
		{
			name:       "test case key",
			harness:    &fakeHarness{key: "location_details", keyAt: 3},
			user:       &fakeUser{},
			key:        "location_details",
			wantReason: ExitTestCaseKey,
			wantCalls:  3,
			wantTurns:  3,
		},
		{
			name:       "key is ignored without a test case",
			harness:    &fakeHarness{key: "location_details", keyAt: 1},
			user:       &fakeUser{},
			maxTurns:   3,
			wantReason: ExitMaxTurns,
			wantCalls:  2,
			wantTurns:  2,
		},
		{
			name:       "test case key wins over sentinel",
			harness:    &fakeHarness{key: "weather_category", keyAt: 1},
			user:       &fakeUser{replies: []string{"opener", "@done@"}},
			key:        "weather_category",
			wantReason: ExitTestCaseKey,
			wantCalls:  1,
			wantTurns:  1,
		},
		{
			name:       "empty reply",
			harness:    &fakeHarness{replies: []string{"Which city?", ""}},
			user:       &fakeUser{},
			wantReason: ExitError,
			wantDetail: emptyReplyDetail,
			wantCalls:  2,
			wantTurns:  1,
		},
		{
			name:       "harness error",
			harness:    &fakeHarness{err: errors.New("rate limited")},
			user:       &fakeUser{},
			wantReason: ExitError,
			wantDetail: "rate limited",
			wantCalls:  1,
		},
		{
			name:       "user error",
			harness:    &fakeHarness{},
			user:       &fakeUser{errAt: 3},
			wantReason: ExitError,
			wantDetail: errUser.Error(),
			wantCalls:  2,
			wantTurns:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []Option{WithLogger(zaptest.NewLogger(t))}
			if tt.maxTurns > 0 {
				opts = append(opts, WithMaxTurns(tt.maxTurns))
			}
			g := NewGenerator(tt.harness, tt.user, opts...)

			var conv *Conversation
			if tt.key != "" {
				conv = g.GenerateTestCase(testutil.TestContext(t), nil, "scenario", CustomerProfile{Prompt: "p"}, tt.key)
			} else {
				conv = g.GenerateConversation(testutil.TestContext(t), CustomerProfile{Prompt: "p"}, "")
			}

			assert.Equal(t, Ended, conv.State())
			assert.Equal(t, tt.wantReason, conv.ExitReason())
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, conv.ExitDetail())
			}
			assert.Equal(t, tt.wantCalls, tt.harness.calls)
			assert.Equal(t, tt.wantTurns, conv.CompletedTurns())
		})
	}
}

func TestGenerator_RecoversPanics(t *testing.T) {
	h := &fakeHarness{panicAt: 2}
	g := NewGenerator(h, &fakeUser{})

	conv := g.GenerateConversation(testutil.TestContext(t), CustomerProfile{}, "")

	assert.Equal(t, ExitError, conv.ExitReason())
	assert.Contains(t, conv.ExitDetail(), "harness exploded")
	assert.Equal(t, 1, conv.CompletedTurns())
}

func TestGenerator_Initialize(t *testing.T) {
	t.Run("asks for an opener after the greeting", func(t *testing.T) {
		u := &fakeUser{replies: []string{"Is it raining?"}}
		g := NewGenerator(&fakeHarness{}, u)
		conv, err := NewWithHistory([]types.Message{types.NewAssistantMessage(Greeting)})
		require.NoError(t, err)

		profile := CustomerProfile{Name: "pat", Prompt: "You are Pat", Attributes: map[string]any{"weather_category": "daily forecast"}}
		require.NoError(t, g.Initialize(testutil.TestContext(t), conv, "scenario", profile))

		assert.Equal(t, InProgress, conv.State())
		assert.Equal(t, "scenario", conv.ScenarioPrompt())
		assert.Equal(t, profile, conv.CustomerProfile())
		assert.Equal(t, 2, conv.InitialLen())
		assert.Equal(t, 0, conv.HarnessContext().Version)
		assert.Equal(t, 1, u.calls)

		assert.ErrorIs(t, g.Initialize(testutil.TestContext(t), conv, "", profile), ErrAlreadyStarted)
	})

	t.Run("keeps a fixed user prompt", func(t *testing.T) {
		u := &fakeUser{}
		g := NewGenerator(&fakeHarness{}, u, WithMaxTurns(1))
		conv := g.GenerateConversation(testutil.TestContext(t), CustomerProfile{UserPrompt: "Forecast for Paris?"}, "")

		msgs := conv.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, Greeting, msgs[0].Content)
		assert.Equal(t, "Forecast for Paris?", msgs[1].Content)
		assert.Equal(t, 0, u.calls)
		assert.Equal(t, ExitMaxTurns, conv.ExitReason())
	})

	t.Run("opener failure ends with error", func(t *testing.T) {
		g := NewGenerator(&fakeHarness{}, &fakeUser{errAt: 1})
		conv := g.GenerateConversation(testutil.TestContext(t), CustomerProfile{}, "")
		assert.Equal(t, ExitError, conv.ExitReason())
		assert.Contains(t, conv.ExitDetail(), errUser.Error())
	})
}

func TestGenerator_GenerateTestCase_Seed(t *testing.T) {
	seed := []types.Message{
		types.NewAssistantMessage(Greeting),
		types.NewUserMessage("weather please"),
		types.NewAssistantMessage("Where are you?"),
		types.NewUserMessage("Denver"),
	}
	u := &fakeUser{}
	g := NewGenerator(&fakeHarness{}, u, WithMaxTurns(3))

	conv := g.GenerateTestCase(testutil.TestContext(t), seed, "", CustomerProfile{}, "never_set")

	assert.Equal(t, 4, conv.InitialLen())
	assert.Equal(t, conv.InitialLen()+2*conv.CompletedTurns(), conv.Len())
	assert.Equal(t, ExitMaxTurns, conv.ExitReason())
	assert.Equal(t, 2, u.calls)

	bad := g.GenerateTestCase(testutil.TestContext(t), []types.Message{
		types.NewUserMessage("a"), types.NewUserMessage("b"),
	}, "", CustomerProfile{}, "k")
	assert.Equal(t, ExitError, bad.ExitReason())
}

func TestGenerator_TurnLimitWarning(t *testing.T) {
	tests := []struct {
		name     string
		harness  *fakeHarness
		wantExit ExitReason
		wantWarn int
	}{
		{name: "last allowed turn", harness: &fakeHarness{}, wantExit: ExitMaxTurns, wantWarn: 1},
		{name: "ended before the limit", harness: &fakeHarness{key: "done", keyAt: 2}, wantExit: ExitTestCaseKey, wantWarn: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			g := NewGenerator(tt.harness, &fakeUser{}, WithMaxTurns(4), WithLogger(zap.New(core)))
			conv := New()
			require.NoError(t, g.Initialize(testutil.TestContext(t), conv, "", CustomerProfile{}))

			assert.Equal(t, tt.wantExit, g.Run(testutil.TestContext(t), conv, "done"))

			warns := logs.FilterMessage("conversation is close to the turn limit").All()
			require.Len(t, warns, tt.wantWarn)
			if tt.wantWarn > 0 {
				// 三次调用全部完成后才告警
				assert.Equal(t, int64(3), warns[0].ContextMap()["turn"])
				assert.Equal(t, 3, tt.harness.calls)
			}
		})
	}
}

func TestGenerator_RunRequiresInitialize(t *testing.T) {
	g := NewGenerator(&fakeHarness{}, &fakeUser{})
	conv := New()
	assert.Equal(t, ExitError, g.Run(testutil.TestContext(t), conv, ""))
	assert.Equal(t, ExitError, g.Run(testutil.TestContext(t), conv, ""))
	assert.Equal(t, "conversation not initialized", conv.ExitDetail())
}

func TestGenerator_RewindRestoresHarness(t *testing.T) {
	h := &fakeHarness{}
	g := NewGenerator(h, &fakeUser{})
	conv := New()
	require.NoError(t, conv.Append(types.RoleAssistant, Greeting))
	require.NoError(t, g.Initialize(testutil.TestContext(t), conv, "", CustomerProfile{}))

	for i := 0; i < 2; i++ {
		ok, err := g.Step(testutil.TestContext(t), conv)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, g.Rewind(conv))
	require.Len(t, h.restored, 1)
	assert.Equal(t, 1, h.restored[0].Version)
	assert.Len(t, h.history, 2)

	ok, err := g.Step(testutil.TestContext(t), conv)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, conv.CompletedTurns())
	assert.Equal(t, conv.InitialLen()+4, conv.Len())
}

func TestGenerator_MetricsAreOptional(t *testing.T) {
	c := metrics.NewCollectorWith("test", prometheus.NewRegistry(), nil)
	g := NewGenerator(&fakeHarness{}, &fakeUser{}, WithMetrics(c), WithMaxTurns(3))
	conv := g.GenerateConversation(testutil.TestContext(t), CustomerProfile{}, "")
	assert.Equal(t, ExitMaxTurns, conv.ExitReason())

	g = NewGenerator(&fakeHarness{}, &fakeUser{}, WithMetrics(nil), WithMaxTurns(3))
	assert.NotPanics(t, func() { g.GenerateConversation(testutil.TestContext(t), CustomerProfile{}, "") })
}
