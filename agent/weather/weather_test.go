package weather

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/BaSui01/weatherbot/agent/session"
	"github.com/BaSui01/weatherbot/clients/maps"
	"github.com/BaSui01/weatherbot/testutil"
	"github.com/BaSui01/weatherbot/testutil/fixtures"
	"github.com/BaSui01/weatherbot/testutil/mocks"
	"github.com/BaSui01/weatherbot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seattleSession() *session.Context {
	sess := session.FromMessages(fixtures.SeattleHistory())
	r := fixtures.SeattleResult()
	sess.SetLocation(r.Position, r.Description())
	return sess
}

// ============================================================
// 🧪 Prompt 测试
// ============================================================

func TestPrompts(t *testing.T) {
	p := ExtractorPrompt("user: hi")
	assert.Contains(t, p, "categories: ['CURRENT_CONDITIONS', 'DAILY_FORECAST', 'SEVERE_ALERTS']")
	assert.Contains(t, p, "simply return UNKNOWN.")
	assert.Contains(t, p, "```\nuser: hi\n```")

	wt := maps.DailyForecast
	a := AssistantPrompt(&wt, `{"x":1}`, "user: hi")
	assert.Contains(t, a, "choices: ['current conditions', 'daily forecast', 'severe alerts'].")
	assert.Contains(t, a, "Weather data, daily forecast:\n```\n{\"x\":1}\n```")

	none := AssistantPrompt(nil, "", "user: hi")
	assert.Contains(t, none, "Weather data:\n```\nNone\n```")
}

// ============================================================
// 🧪 Extractor 测试
// ============================================================

func TestExtractor_Extract(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		prev  *maps.WeatherType
		want  *maps.WeatherType
	}{
		{"current", "CURRENT_CONDITIONS", nil, ptr(maps.CurrentConditions)},
		{"lowercase answer", "daily_forecast", nil, ptr(maps.DailyForecast)},
		{"unknown keeps previous", "UNKNOWN", ptr(maps.SevereAlerts), ptr(maps.SevereAlerts)},
		{"unknown without previous", "unknown", nil, nil},
		{"unparseable", "the weather", nil, nil},
		{"new question replaces", "SEVERE_ALERTS", ptr(maps.CurrentConditions), ptr(maps.SevereAlerts)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := seattleSession()
			if tt.prev != nil {
				sess.SetWeatherCategory(*tt.prev)
			}
			provider := mocks.NewMockProvider().WithResponse(tt.reply)
			require.NoError(t, NewExtractor(provider, "m").Extract(testutil.TestContext(t), sess))
			assert.Equal(t, tt.want, sess.WeatherCategory)
		})
	}
}

func TestExtractor_UsesLastTwoMessages(t *testing.T) {
	sess := session.New()
	sess.AddMessage(types.RoleAssistant, "first")
	sess.AddMessage(types.RoleUser, "second")
	sess.AddMessage(types.RoleAssistant, "third")
	sess.AddMessage(types.RoleUser, "fourth")

	provider := mocks.NewMockProvider().WithResponse("UNKNOWN")
	require.NoError(t, NewExtractor(provider, "m").Extract(testutil.TestContext(t), sess))

	prompt := provider.LastRequest().Messages[0].Content
	assert.Contains(t, prompt, "assistant: third\nuser: fourth")
	assert.NotContains(t, prompt, "second")
}

func TestExtractor_Empty(t *testing.T) {
	provider := mocks.NewMockProvider()
	require.NoError(t, NewExtractor(provider, "m").Extract(testutil.TestContext(t), session.New()))
	assert.Zero(t, provider.CallCount())
}

// ============================================================
// 🧪 Assistant / Agent 测试
// ============================================================

func TestAssistant_Reply(t *testing.T) {
	t.Run("without category", func(t *testing.T) {
		source := &mocks.MockWeatherSource{}
		provider := mocks.NewMockProvider().WithResponse("What would you like to know?")

		reply, err := NewAssistant(provider, "m", source, nil).Reply(testutil.TestContext(t), seattleSession())
		require.NoError(t, err)
		assert.Equal(t, "What would you like to know?", reply)
		assert.Empty(t, source.Calls)
		assert.Contains(t, provider.LastRequest().Messages[0].Content, "None")
	})

	t.Run("with category", func(t *testing.T) {
		source := &mocks.MockWeatherSource{Data: map[maps.WeatherType]json.RawMessage{
			maps.CurrentConditions: fixtures.CurrentConditions(),
		}}
		provider := mocks.NewMockProvider().WithResponse("It is 15C and cloudy.")
		sess := seattleSession()
		sess.SetWeatherCategory(maps.CurrentConditions)

		reply, err := NewAssistant(provider, "m", source, nil).Reply(testutil.TestContext(t), sess)
		require.NoError(t, err)
		assert.Equal(t, "It is 15C and cloudy.", reply)
		require.Len(t, source.Calls, 1)
		assert.Equal(t, fixtures.SeattleResult().Position, source.Calls[0].At)
		prompt := provider.LastRequest().Messages[0].Content
		assert.Contains(t, prompt, "Weather data, current conditions:")
		assert.Contains(t, prompt, `"phrase":"Cloudy"`)
	})

	t.Run("source error", func(t *testing.T) {
		source := &mocks.MockWeatherSource{Err: errors.New("503")}
		sess := seattleSession()
		sess.SetWeatherCategory(maps.SevereAlerts)
		_, err := NewAssistant(mocks.NewMockProvider(), "m", source, nil).Reply(testutil.TestContext(t), sess)
		assert.ErrorContains(t, err, "503")
	})

	t.Run("empty history", func(t *testing.T) {
		provider := mocks.NewMockProvider()
		reply, err := NewAssistant(provider, "m", &mocks.MockWeatherSource{}, nil).Reply(testutil.TestContext(t), session.New())
		require.NoError(t, err)
		assert.Empty(t, reply)
		assert.Zero(t, provider.CallCount())
	})
}

func TestAgent_Invoke(t *testing.T) {
	provider := mocks.NewMockProvider().WithScript("DAILY_FORECAST", "Tomorrow will be sunny.")
	source := &mocks.MockWeatherSource{}
	agent := NewAgent(NewExtractor(provider, "m"), NewAssistant(provider, "m", source, nil))

	sess := seattleSession()
	reply, err := agent.Invoke(testutil.TestContext(t), sess)
	require.NoError(t, err)
	assert.Equal(t, "Tomorrow will be sunny.", reply)
	assert.Equal(t, maps.DailyForecast, *sess.WeatherCategory)
	require.Len(t, source.Calls, 1)
	assert.Equal(t, maps.DailyForecast, source.Calls[0].Type)
	assert.Equal(t, Name, agent.Name())
}

func ptr(w maps.WeatherType) *maps.WeatherType { return &w }
