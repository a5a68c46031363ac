package location

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/weatherbot/agent/session"
	"github.com/BaSui01/weatherbot/clients/maps"
	"github.com/BaSui01/weatherbot/llm"
	"github.com/BaSui01/weatherbot/types"
	"go.uber.org/zap"
)

// Geocoder resolves a free-text address to candidate coordinates.
type Geocoder interface {
	SearchAddress(ctx context.Context, query string) ([]maps.SearchResult, error)
}

// Extractor reads the transcript, asks the model for the latest location
// the user mentioned and geocodes it into the session.
type Extractor struct {
	provider llm.Provider
	model    string
	geocoder Geocoder
	logger   *zap.Logger
}

// NewExtractor creates a location extractor.
func NewExtractor(provider llm.Provider, model string, geocoder Geocoder, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		provider: provider,
		model:    model,
		geocoder: geocoder,
		logger:   logger.With(zap.String("component", "location_extractor")),
	}
}

// Describe returns the model's comma separated location description, or
// "" when the transcript has no location.
func (e *Extractor) Describe(ctx context.Context, history []types.Message) (string, error) {
	if len(history) == 0 {
		return "", nil
	}
	prompt := ExtractorPrompt(types.FlattenMessages(history))
	desc, err := llm.CompleteText(ctx, e.provider, e.model, []types.Message{types.NewSystemMessage(prompt)}, 0)
	if err != nil {
		return "", fmt.Errorf("extract location: %w", err)
	}
	if strings.Contains(strings.ToUpper(desc), Unknown) {
		return "", nil
	}
	return strings.TrimSpace(desc), nil
}

// Extract updates sess.Location when the transcript names a place that
// geocodes above GeoScoreThreshold. It leaves sess untouched otherwise.
func (e *Extractor) Extract(ctx context.Context, sess *session.Context) error {
	desc, err := e.Describe(ctx, sess.Messages())
	if err != nil || desc == "" {
		return err
	}

	results, err := e.geocoder.SearchAddress(ctx, desc)
	if err != nil {
		return fmt.Errorf("geocode %q: %w", desc, err)
	}
	for _, r := range results {
		if r.Score > GeoScoreThreshold {
			sess.SetLocation(r.Position, r.Description())
			e.logger.Debug("location resolved",
				zap.String("query", desc),
				zap.String("location", sess.LocationDescription),
				zap.Float64("score", r.Score))
			return nil
		}
	}
	e.logger.Debug("no confident geocoding match", zap.String("query", desc), zap.Int("results", len(results)))
	return nil
}
