package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/BaSui01/weatherbot/agent/location"
	"github.com/BaSui01/weatherbot/agent/session"
	"github.com/BaSui01/weatherbot/agent/weather"
	"github.com/BaSui01/weatherbot/clients/maps"
	"github.com/BaSui01/weatherbot/internal/metrics"
	"github.com/BaSui01/weatherbot/testutil"
	"github.com/BaSui01/weatherbot/testutil/fixtures"
	"github.com/BaSui01/weatherbot/testutil/mocks"
	"github.com/BaSui01/weatherbot/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAgent struct {
	name  string
	reply string
	err   error
	calls int
}

func (s *stubAgent) Name() string { return s.name }

func (s *stubAgent) Invoke(ctx context.Context, sess *session.Context) (string, error) {
	s.calls++
	return s.reply, s.err
}

// ============================================================
// 🧪 Orchestrator 测试
// ============================================================

func TestOrchestrator_Chain(t *testing.T) {
	tests := []struct {
		name        string
		first       string
		second      string
		wantReply   string
		wantVisited []string
	}{
		{"first agent answers", "Where are you?", "unused", "Where are you?", []string{"location"}},
		{"falls through", "", "It's sunny.", "It's sunny.", []string{"location", "weather"}},
		{"last agent empty", "", "", "", []string{"location", "weather"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := &stubAgent{name: "location", reply: tt.first}
			wx := &stubAgent{name: "weather", reply: tt.second}
			o := New([]Agent{loc, wx})

			sess := session.FromMessages([]types.Message{types.NewAssistantMessage(fixtures.Greeting)})
			reply, err := o.Reply(testutil.TestContext(t), "weather please", sess)
			require.NoError(t, err)

			assert.Equal(t, tt.wantReply, reply)
			assert.Equal(t, tt.wantVisited, sess.VisitedAgents)
			msgs := sess.Messages()
			require.Len(t, msgs, 3)
			assert.Equal(t, types.NewUserMessage("weather please"), msgs[1])
			assert.Equal(t, types.NewAssistantMessage(tt.wantReply), msgs[2])
		})
	}
}

func TestOrchestrator_EmptyUserMessage(t *testing.T) {
	o := New([]Agent{&stubAgent{name: "location", reply: "hi"}})
	sess := session.New()
	_, err := o.Reply(testutil.TestContext(t), "", sess)
	require.NoError(t, err)
	assert.Equal(t, []types.Message{types.NewAssistantMessage("hi")}, sess.Messages())
}

func TestOrchestrator_AgentError(t *testing.T) {
	loc := &stubAgent{name: "location", err: errors.New("geocoder down")}
	wx := &stubAgent{name: "weather", reply: "x"}
	reg := prometheus.NewRegistry()
	o := New([]Agent{loc, wx}, WithMetrics(metrics.NewCollectorWith("test", reg, nil)), WithLogger(zap.NewNop()))

	sess := session.New()
	_, err := o.Reply(testutil.TestContext(t), "hi", sess)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "location agent")
	assert.Zero(t, wx.calls)
	// 失败时不写入助手消息
	assert.Equal(t, 1, sess.Len())
}

func TestOrchestrator_NoAgents(t *testing.T) {
	_, err := New(nil).Reply(testutil.TestContext(t), "hi", session.New())
	assert.Error(t, err)
}

func TestOrchestrator_VisitsResetPerReply(t *testing.T) {
	o := New([]Agent{&stubAgent{name: "location"}, &stubAgent{name: "weather", reply: "ok"}})
	sess := session.New()
	_, _ = o.Reply(testutil.TestContext(t), "a", sess)
	_, _ = o.Reply(testutil.TestContext(t), "b", sess)
	assert.Equal(t, []string{"location", "weather"}, sess.VisitedAgents)
}

// 真实 Agent 组合：位置已知后进入天气 Agent
func TestOrchestrator_WithRealAgents(t *testing.T) {
	provider := mocks.NewMockProvider().
		WithRoute("extract location information", "United States, Seattle, WA").
		WithRoute("classify it into one of the following", "CURRENT_CONDITIONS").
		WithRoute("You are a helpful assistant talking to a user", "It is 15C and cloudy in Seattle.")
	geo := &mocks.MockGeocoder{Results: []maps.SearchResult{fixtures.SeattleResult()}}
	source := &mocks.MockWeatherSource{}

	o := New([]Agent{
		location.NewAgent(location.NewExtractor(provider, "m", geo, nil), location.NewAssistant(provider, "m")),
		weather.NewAgent(weather.NewExtractor(provider, "m"), weather.NewAssistant(provider, "m", source, nil)),
	})

	sess := session.FromMessages([]types.Message{types.NewAssistantMessage(fixtures.Greeting)})
	reply, err := o.Reply(testutil.TestContext(t), "What's the weather in Seattle right now?", sess)
	require.NoError(t, err)

	assert.Equal(t, "It is 15C and cloudy in Seattle.", reply)
	assert.Equal(t, []string{location.Name, weather.Name}, sess.VisitedAgents)
	require.NotNil(t, sess.WeatherCategory)
	assert.Equal(t, maps.CurrentConditions, *sess.WeatherCategory)
	require.Len(t, source.Calls, 1)
}
