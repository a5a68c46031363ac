package weather

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/weatherbot/agent/session"
	"github.com/BaSui01/weatherbot/clients/maps"
	"github.com/BaSui01/weatherbot/llm"
	"github.com/BaSui01/weatherbot/types"
)

// recentWindow is how many trailing messages the classifier sees, so a new
// question replaces the category without explicit change detection.
const recentWindow = 2

// Extractor classifies what kind of weather the user is asking about.
type Extractor struct {
	provider llm.Provider
	model    string
}

// NewExtractor creates a weather category extractor.
func NewExtractor(provider llm.Provider, model string) *Extractor {
	return &Extractor{provider: provider, model: model}
}

// Classify returns the category for the given recent history.
func (e *Extractor) Classify(ctx context.Context, recent []types.Message) (maps.WeatherType, bool, error) {
	if len(recent) == 0 {
		return "", false, nil
	}
	prompt := ExtractorPrompt(types.FlattenMessages(recent))
	answer, err := llm.CompleteText(ctx, e.provider, e.model, []types.Message{types.NewSystemMessage(prompt)}, 0)
	if err != nil {
		return "", false, fmt.Errorf("classify weather question: %w", err)
	}
	if strings.Contains(strings.ToUpper(answer), UnknownCategory) {
		return "", false, nil
	}
	wt, ok := maps.ParseWeatherType(answer)
	return wt, ok, nil
}

// Extract sets sess.WeatherCategory from the last two messages. An
// UNKNOWN answer keeps the previous category.
func (e *Extractor) Extract(ctx context.Context, sess *session.Context) error {
	wt, ok, err := e.Classify(ctx, sess.Recent(recentWindow))
	if err != nil {
		return err
	}
	if ok {
		sess.SetWeatherCategory(wt)
	}
	return nil
}
