package weather

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/weatherbot/agent/session"
	"github.com/BaSui01/weatherbot/clients/maps"
	"github.com/BaSui01/weatherbot/llm"
	"github.com/BaSui01/weatherbot/types"
	"go.uber.org/zap"
)

// Source fetches weather data for coordinates.
type Source interface {
	Get(ctx context.Context, at maps.Coordinates, wt maps.WeatherType) (json.RawMessage, error)
}

// Assistant answers weather questions from fetched data.
type Assistant struct {
	provider llm.Provider
	model    string
	source   Source
	logger   *zap.Logger
}

// NewAssistant creates a weather assistant.
func NewAssistant(provider llm.Provider, model string, source Source, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{
		provider: provider,
		model:    model,
		source:   source,
		logger:   logger.With(zap.String("component", "weather_assistant")),
	}
}

// Reply answers the conversation in sess. With no history it returns "".
func (a *Assistant) Reply(ctx context.Context, sess *session.Context) (string, error) {
	if sess.Len() == 0 {
		return "", nil
	}

	var data string
	if sess.WeatherCategory != nil {
		if sess.Location == nil {
			return "", fmt.Errorf("weather assistant: category %s set without a location", sess.WeatherCategory.Label())
		}
		raw, err := a.source.Get(ctx, *sess.Location, *sess.WeatherCategory)
		if err != nil {
			return "", fmt.Errorf("weather assistant: %w", err)
		}
		data = string(raw)
		a.logger.Debug("weather data fetched",
			zap.String("category", string(*sess.WeatherCategory)),
			zap.Int("bytes", len(raw)))
	}

	prompt := AssistantPrompt(sess.WeatherCategory, data, sess.Transcript())
	reply, err := llm.CompleteText(ctx, a.provider, a.model, []types.Message{types.NewSystemMessage(prompt)}, 0)
	if err != nil {
		return "", fmt.Errorf("weather assistant: %w", err)
	}
	return reply, nil
}
