package session

import (
	"errors"
	"testing"

	"github.com/BaSui01/weatherbot/clients/maps"
	"github.com/BaSui01/weatherbot/llm/tokenizer"
	"github.com/BaSui01/weatherbot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Messages(t *testing.T) {
	c := New()
	c.AddMessage(types.RoleAssistant, "Hello! How can I help you?")
	c.AddMessage(types.RoleUser, "weather in Paris")

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "assistant: Hello! How can I help you?\nuser: weather in Paris", c.Transcript())

	// 返回副本，修改不影响内部状态
	msgs[0].Content = "changed"
	assert.Equal(t, "Hello! How can I help you?", c.Messages()[0].Content)

	assert.Equal(t, []types.Message{types.NewUserMessage("weather in Paris")}, c.Recent(1))
	assert.Len(t, c.Recent(5), 2)
}

func TestContext_FromMessages(t *testing.T) {
	src := []types.Message{types.NewUserMessage("hi")}
	c := FromMessages(src)
	src[0].Content = "mutated"
	assert.Equal(t, "hi", c.Messages()[0].Content)
}

func TestContext_State(t *testing.T) {
	c := New()
	assert.Nil(t, c.Location)
	assert.Nil(t, c.WeatherCategory)

	c.SetLocation(maps.Coordinates{Lat: 47.6, Lon: -122.3}, "United States, Seattle, WA")
	c.SetWeatherCategory(maps.DailyForecast)
	c.Visit("location")
	c.Visit("weather")

	require.NotNil(t, c.Location)
	assert.Equal(t, 47.6, c.Location.Lat)
	assert.Equal(t, maps.DailyForecast, *c.WeatherCategory)
	assert.Equal(t, []string{"location", "weather"}, c.VisitedAgents)
}

func TestContext_Truncate(t *testing.T) {
	newCtx := func() *Context {
		c := New()
		for _, s := range []string{"one one one one", "two two two two", "three three", "four"} {
			c.AddMessage(types.RoleUser, s)
		}
		return c
	}
	est := tokenizer.NewEstimator()

	t.Run("disabled", func(t *testing.T) {
		c := newCtx()
		n, err := c.Truncate(est, 0)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, 4, c.Len())
	})

	t.Run("fits", func(t *testing.T) {
		c := newCtx()
		n, err := c.Truncate(est, 10_000)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("drops oldest", func(t *testing.T) {
		c := newCtx()
		full, _ := est.CountMessages(c.Messages())
		n, err := c.Truncate(est, full-1)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)
		assert.Equal(t, "four", c.Messages()[c.Len()-1].Content)
		assert.NotEqual(t, "one one one one", c.Messages()[0].Content)
	})

	t.Run("keeps last message", func(t *testing.T) {
		c := newCtx()
		n, err := c.Truncate(est, 1)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, []types.Message{types.NewUserMessage("four")}, c.Messages())
	})

	t.Run("counter error", func(t *testing.T) {
		c := newCtx()
		_, err := c.Truncate(failingCounter{}, 5)
		assert.Error(t, err)
	})
}

type failingCounter struct{}

func (failingCounter) CountText(string) (int, error) { return 0, errors.New("boom") }
func (failingCounter) CountMessages([]types.Message) (int, error) {
	return 0, errors.New("boom")
}
func (failingCounter) Name() string { return "failing" }
