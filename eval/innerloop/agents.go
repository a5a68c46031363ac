package innerloop

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/BaSui01/weatherbot/agent/location"
	"github.com/BaSui01/weatherbot/agent/session"
	"github.com/BaSui01/weatherbot/agent/weather"
	"github.com/BaSui01/weatherbot/clients/maps"
	"github.com/BaSui01/weatherbot/eval/grader"
	"github.com/BaSui01/weatherbot/eval/harness"
	"github.com/BaSui01/weatherbot/llm"
	"github.com/BaSui01/weatherbot/types"
	"go.uber.org/zap"
)

// Agent names accepted by NewAgent.
const (
	LocationExtractorName = "LocationExtractor"
	LocationAssistantName = "LocationAssistant"
	WeatherExtractorName  = "WeatherExtractor"
	WeatherAssistantName  = "WeatherAssistant"
)

// Metric keys.
const (
	MetricExactMatch = "exact_match"
)

// Agent adapts one agent of the chatbot for isolated evaluation.
type Agent interface {
	Name() string
	// Predict runs the agent on the test case's history.
	Predict(ctx context.Context, tc TestCase) (any, error)
	// Measure scores result. Keys are metric names.
	Measure(ctx context.Context, tc TestCase, result any) (map[string]float64, error)
	// SeedPrompts returns the prompts the agent was built with.
	SeedPrompts() map[string]string
}

// Deps are the collaborators agent wrappers are built from.
type Deps struct {
	Provider llm.Provider
	Model    string
	Geocoder location.Geocoder
	Weather  weather.Source
	// Judge grades assistant replies; its model defaults to Model.
	JudgeModel string
	Logger     *zap.Logger
}

// NewAgent builds the wrapper named name.
func NewAgent(name string, d Deps) (Agent, error) {
	judge := d.JudgeModel
	if judge == "" {
		judge = d.Model
	}
	criteria := newCriteriaGrader(d.Provider, judge, d.Logger)
	switch name {
	case LocationExtractorName:
		if d.Geocoder == nil {
			return nil, fmt.Errorf("%s needs a geocoder", name)
		}
		return &LocationExtractorAgent{
			extractor: location.NewExtractor(d.Provider, d.Model, d.Geocoder, d.Logger),
			geocoder:  d.Geocoder,
		}, nil
	case LocationAssistantName:
		return &LocationAssistantAgent{assistant: location.NewAssistant(d.Provider, d.Model), grader: criteria}, nil
	case WeatherExtractorName:
		return &WeatherExtractorAgent{extractor: weather.NewExtractor(d.Provider, d.Model)}, nil
	case WeatherAssistantName:
		if d.Weather == nil {
			return nil, fmt.Errorf("%s needs a weather source", name)
		}
		return &WeatherAssistantAgent{
			assistant: weather.NewAssistant(d.Provider, d.Model, d.Weather, d.Logger),
			grader:    criteria,
		}, nil
	default:
		return nil, fmt.Errorf("unknown agent %q", name)
	}
}

// AgentNames lists the agents NewAgent can build.
func AgentNames() []string {
	return []string{LocationExtractorName, LocationAssistantName, WeatherExtractorName, WeatherAssistantName}
}

// =============================================================================
// 📍 Location
// =============================================================================

// LocationExtractorAgent scores the geocoded location against the profile's
// city and state.
type LocationExtractorAgent struct {
	extractor *location.Extractor
	geocoder  location.Geocoder
}

func (a *LocationExtractorAgent) Name() string { return LocationExtractorName }

// Predict returns the extracted maps.Coordinates, or nil.
func (a *LocationExtractorAgent) Predict(ctx context.Context, tc TestCase) (any, error) {
	history, err := tc.History()
	if err != nil {
		return nil, err
	}
	sess := session.FromMessages(history)
	if err := a.extractor.Extract(ctx, sess); err != nil {
		return nil, err
	}
	if sess.Location == nil {
		return nil, nil
	}
	return *sess.Location, nil
}

func (a *LocationExtractorAgent) Measure(ctx context.Context, tc TestCase, result any) (map[string]float64, error) {
	expected, err := a.expected(ctx, tc)
	if err != nil {
		return nil, err
	}
	return map[string]float64{MetricExactMatch: float64(grader.ExactMatch(expected, result))}, nil
}

// expected geocodes the profile location the same way the extractor does.
func (a *LocationExtractorAgent) expected(ctx context.Context, tc TestCase) (any, error) {
	loc, ok := tc.CustomerProfile.Attributes["location"].(map[string]any)
	if !ok {
		return nil, nil
	}
	query := fmt.Sprintf("%v, %v", loc["city"], loc["state"])
	results, err := a.geocoder.SearchAddress(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("geocode expected location %q: %w", query, err)
	}
	for _, r := range results {
		if r.Score > location.GeoScoreThreshold {
			return r.Position, nil
		}
	}
	return nil, nil
}

func (a *LocationExtractorAgent) SeedPrompts() map[string]string {
	return map[string]string{"location_extractor_prompt": location.ExtractorPrompt("{conversation}")}
}

// LocationAssistantAgent grades the assistant's reply against criteria.
type LocationAssistantAgent struct {
	assistant *location.Assistant
	grader    *criteriaGrader
}

func (a *LocationAssistantAgent) Name() string { return LocationAssistantName }

func (a *LocationAssistantAgent) Predict(ctx context.Context, tc TestCase) (any, error) {
	history, err := tc.History()
	if err != nil {
		return nil, err
	}
	return a.assistant.Reply(ctx, history)
}

func (a *LocationAssistantAgent) Measure(ctx context.Context, tc TestCase, result any) (map[string]float64, error) {
	return a.grader.measure(ctx, tc, result)
}

func (a *LocationAssistantAgent) SeedPrompts() map[string]string {
	return map[string]string{"location_assistant_prompt": location.AssistantSystemPrompt()}
}

// =============================================================================
// 🌦️ Weather
// =============================================================================

// WeatherExtractorAgent scores the classified category label against the
// profile's weather_category.
type WeatherExtractorAgent struct {
	extractor *weather.Extractor
}

func (a *WeatherExtractorAgent) Name() string { return WeatherExtractorName }

// Predict returns the category label, or "" when nothing was classified.
func (a *WeatherExtractorAgent) Predict(ctx context.Context, tc TestCase) (any, error) {
	history, err := tc.History()
	if err != nil {
		return nil, err
	}
	sess := session.FromMessages(history)
	if err := a.extractor.Extract(ctx, sess); err != nil {
		return nil, err
	}
	if sess.WeatherCategory == nil {
		return "", nil
	}
	return sess.WeatherCategory.Label(), nil
}

func (a *WeatherExtractorAgent) Measure(_ context.Context, tc TestCase, result any) (map[string]float64, error) {
	expected := tc.CustomerProfile.Attributes["weather_category"]
	return map[string]float64{MetricExactMatch: float64(grader.ExactMatch(expected, result))}, nil
}

func (a *WeatherExtractorAgent) SeedPrompts() map[string]string {
	return map[string]string{"weather_extractor_prompt": weather.ExtractorPrompt("{conversation}")}
}

// WeatherAssistantAgent grades the assistant's reply. The location and
// category recorded in the case context are restored into the session.
type WeatherAssistantAgent struct {
	assistant *weather.Assistant
	grader    *criteriaGrader
}

func (a *WeatherAssistantAgent) Name() string { return WeatherAssistantName }

func (a *WeatherAssistantAgent) Predict(ctx context.Context, tc TestCase) (any, error) {
	history, err := tc.History()
	if err != nil {
		return nil, err
	}
	sess := session.FromMessages(history)
	if at, ok := parseCoordinates(tc.Attribute(harness.AttrLocation)); ok {
		sess.SetLocation(at, tc.Attribute(harness.AttrLocationDetails))
	}
	if label := tc.Attribute(harness.AttrWeatherCategory); label != "" {
		if wt, ok := maps.ParseWeatherType(strings.ReplaceAll(label, " ", "_")); ok {
			sess.SetWeatherCategory(wt)
		}
	}
	return a.assistant.Reply(ctx, sess)
}

func (a *WeatherAssistantAgent) Measure(ctx context.Context, tc TestCase, result any) (map[string]float64, error) {
	return a.grader.measure(ctx, tc, result)
}

func (a *WeatherAssistantAgent) SeedPrompts() map[string]string {
	return map[string]string{"weather_assistant_prompt": weather.AssistantPrompt(nil, "{data}", "{conversation}")}
}

func parseCoordinates(s string) (maps.Coordinates, bool) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return maps.Coordinates{}, false
	}
	la, err1 := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	lo, err2 := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err1 != nil || err2 != nil {
		return maps.Coordinates{}, false
	}
	c := maps.Coordinates{Lat: la, Lon: lo}
	return c, c.Validate() == nil
}

// =============================================================================
// ⚖️ Criteria grading
// =============================================================================

// criteriaGrader grades an assistant reply appended to the case history.
// One criterion uses the single template, several use the multi template
// and average the per-criterion scores.
type criteriaGrader struct {
	single *grader.Grader
	multi  *grader.Grader
	logger *zap.Logger
}

func newCriteriaGrader(provider llm.Provider, model string, logger *zap.Logger) *criteriaGrader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &criteriaGrader{
		single: grader.New(provider, model, grader.SingleCriterionTemplate, logger),
		multi:  grader.New(provider, model, grader.MultiCriteriaTemplate, logger),
		logger: logger.With(zap.String("component", "innerloop_grader")),
	}
}

func (g *criteriaGrader) measure(ctx context.Context, tc TestCase, result any) (map[string]float64, error) {
	reply, _ := result.(string)
	if len(tc.CriteriaPrompt) == 0 {
		return map[string]float64{MetricExactMatch: float64(grader.ExactMatch(tc.ExpectedOutput, reply))}, nil
	}
	if len(tc.IdealAnswer) != len(tc.CriteriaPrompt) {
		return nil, fmt.Errorf("test case %s: %d criteria but %d ideal answers",
			tc.ID, len(tc.CriteriaPrompt), len(tc.IdealAnswer))
	}

	history, err := tc.History()
	if err != nil {
		return nil, err
	}
	history = append(history, types.NewAssistantMessage(reply))
	transcript := types.FlattenMessages(history)

	if len(tc.CriteriaPrompt) == 1 {
		raw, err := g.single.Evaluate(ctx, transcript, tc.CriteriaPrompt[0], "")
		if err != nil {
			return nil, err
		}
		if raw == "" {
			return map[string]float64{MetricExactMatch: 0}, nil
		}
		grade := grader.ParseGrade(g.single.Validate(raw))
		g.logger.Debug("criterion graded", zap.String("test_case", tc.ID), zap.String("explanation", grade.Explanation))
		score := 0.0
		if grade.Answer == tc.IdealAnswer[0] {
			score = 1
		}
		return map[string]float64{MetricExactMatch: score}, nil
	}

	var list strings.Builder
	for i, c := range tc.CriteriaPrompt {
		fmt.Fprintf(&list, "%d. %s\n", i+1, c)
	}
	raw, err := g.multi.Evaluate(ctx, transcript, list.String(), "")
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return map[string]float64{MetricExactMatch: 0}, nil
	}
	grades := grader.ParseGrades(g.multi.Validate(raw))
	sum := 0.0
	for i, ideal := range tc.IdealAnswer {
		if i < len(grades) && grades[i].Answer == ideal {
			sum++
		}
	}
	return map[string]float64{MetricExactMatch: sum / float64(len(tc.IdealAnswer))}, nil
}
