package endtoend

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/BaSui01/weatherbot/eval/grader"
	"github.com/BaSui01/weatherbot/eval/scenario"
	"github.com/BaSui01/weatherbot/internal/metrics"
	"go.uber.org/zap"
)

// Grading modes.
const (
	ModeSingle = "single"
	ModeMulti  = "multi"
)

const (
	noOutputExplanation  = "llm evaluator did not output anything"
	notGradedExplanation = "llm evaluator did not grade this criterion"
)

// Judge grades conversations. *grader.Grader satisfies it.
type Judge interface {
	Template() string
	Evaluate(ctx context.Context, conversation, criteria, completion string) (string, error)
	Validate(raw string) map[string]any
}

// Scored is a record with its grade.
type Scored struct {
	scenario.Record
	GradedCriteria string `json:"graded_criteria_prompt,omitempty"`
	Explanation    string `json:"explanation"`
	Answer         string `json:"answer"`
	Score          int    `json:"score"`
}

// Report summarizes a grading pass.
type Report struct {
	Mode        string             `json:"mode"`
	AvgAccuracy float64            `json:"avg_accuracy"`
	Scenarios   map[string]float64 `json:"scenarios"`
	Categories  map[string]float64 `json:"categories,omitempty"`
	Results     []Scored           `json:"results"`
}

// Metrics flattens the report into tracking metrics.
func (r *Report) Metrics() map[string]float64 {
	out := make(map[string]float64, len(r.Scenarios)+len(r.Categories)+1)
	out["avg_accuracy"] = r.AvgAccuracy
	for k, v := range r.Scenarios {
		out[k] = v
	}
	for k, v := range r.Categories {
		out["category_"+k] = v
	}
	return out
}

// ConversationScores returns the mean score of every graded conversation.
func (r *Report) ConversationScores() map[string]float64 {
	sums := map[string]*mean{}
	for _, s := range r.Results {
		m, ok := sums[s.ConversationID]
		if !ok {
			m = &mean{}
			sums[s.ConversationID] = m
		}
		m.add(float64(s.Score))
	}
	out := make(map[string]float64, len(sums))
	for id, m := range sums {
		out[id] = m.value()
	}
	return out
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) { m.sum += v; m.n++ }

func (m *mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

func scenarioKey(id int) string { return "scenario_" + strconv.Itoa(id) }

// Evaluator grades generated conversations with an LLM judge.
type Evaluator struct {
	judge   Judge
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewEvaluator creates an evaluator. metrics may be nil.
func NewEvaluator(judge Judge, collector *metrics.Collector, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		judge:   judge,
		metrics: collector,
		logger:  logger.With(zap.String("component", "end_to_end_evaluator")),
	}
}

// Template returns the judge's prompt template.
func (e *Evaluator) Template() string { return e.judge.Template() }

// evaluate calls the judge. A failed call is graded as its error text so a
// single bad conversation does not abort the pass. Only a cancelled
// context is returned as an error.
func (e *Evaluator) evaluate(ctx context.Context, history, criteria string) (string, error) {
	raw, err := e.judge.Evaluate(ctx, history, criteria, "")
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		e.logger.Warn("grader call failed", zap.Error(err))
		return err.Error(), nil
	}
	return raw, nil
}

// SingleCriterion grades every record on its own criterion.
func (e *Evaluator) SingleCriterion(ctx context.Context, records []scenario.Record) (*Report, error) {
	e.logger.Info("single criterion grading started", zap.Int("records", len(records)))

	results := make([]Scored, 0, len(records))
	for _, rec := range records {
		raw, err := e.evaluate(ctx, rec.History, rec.CriteriaPrompt)
		if err != nil {
			return nil, err
		}
		s := Scored{Record: rec}
		if raw == "" {
			s.Explanation = noOutputExplanation
			e.metrics.RecordGrade(ModeSingle, "empty", 0)
		} else {
			g := grader.ParseGrade(e.judge.Validate(raw))
			s.GradedCriteria = g.CriteriaPrompt
			s.Explanation = g.Explanation
			s.Answer = g.Answer
			if g.Answer == rec.IdealAnswer {
				s.Score = 1
			}
			e.metrics.RecordGrade(ModeSingle, "graded", float64(s.Score))
		}
		results = append(results, s)
	}

	scenarios := map[string]*mean{}
	categories := map[string]*mean{}
	overall := &mean{}
	for _, s := range results {
		v := float64(s.Score)
		overall.add(v)
		bucket(scenarios, scenarioKey(s.ScenarioID)).add(v)
		if s.Category != "" {
			bucket(categories, s.Category).add(v)
		}
	}

	rep := &Report{
		Mode:        ModeSingle,
		AvgAccuracy: overall.value(),
		Scenarios:   means(scenarios),
		Categories:  means(categories),
		Results:     results,
	}
	e.logger.Info("single criterion grading finished", zap.Float64("avg_accuracy", rep.AvgAccuracy))
	return rep, nil
}

type convKey struct {
	scenarioID int
	desc       string
	convID     string
	history    string
}

// MultiCriteria grades each conversation on all of its criteria in one
// call. Grades are matched to criteria by position.
func (e *Evaluator) MultiCriteria(ctx context.Context, records []scenario.Record) (*Report, error) {
	var order []convKey
	groups := map[convKey][]scenario.Record{}
	for _, rec := range records {
		k := convKey{rec.ScenarioID, rec.ScenarioDesc, rec.ConversationID, rec.History}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], rec)
	}
	e.logger.Info("multi criteria grading started", zap.Int("conversations", len(order)))

	var results []Scored
	scenarios := map[string]*mean{}
	for _, k := range order {
		recs := groups[k]
		var criteria strings.Builder
		for i, rec := range recs {
			fmt.Fprintf(&criteria, "%d. %s\n", i+1, rec.CriteriaPrompt)
		}

		raw, err := e.evaluate(ctx, k.history, criteria.String())
		if err != nil {
			return nil, err
		}
		var grades []grader.Grade
		if raw != "" {
			grades = grader.ParseGrades(e.judge.Validate(raw))
		}

		for i, rec := range recs {
			s := Scored{Record: rec}
			if i < len(grades) {
				g := grades[i]
				s.GradedCriteria = g.CriteriaPrompt
				s.Explanation = g.Explanation
				s.Answer = g.Answer
				if g.Answer == rec.IdealAnswer {
					s.Score = 1
				}
				e.metrics.RecordGrade(ModeMulti, "graded", float64(s.Score))
			} else {
				s.Explanation = notGradedExplanation
				if raw == "" {
					s.Explanation = noOutputExplanation
				}
				e.metrics.RecordGrade(ModeMulti, "empty", 0)
			}
			bucket(scenarios, scenarioKey(rec.ScenarioID)).add(float64(s.Score))
			results = append(results, s)
		}
	}

	perScenario := means(scenarios)
	overall := &mean{}
	for _, v := range perScenario {
		overall.add(v)
	}
	rep := &Report{
		Mode:        ModeMulti,
		AvgAccuracy: overall.value(),
		Scenarios:   perScenario,
		Results:     results,
	}
	e.logger.Info("multi criteria grading finished", zap.Float64("avg_accuracy", rep.AvgAccuracy))
	return rep, nil
}

func bucket(m map[string]*mean, key string) *mean {
	b, ok := m[key]
	if !ok {
		b = &mean{}
		m[key] = b
	}
	return b
}

func means(m map[string]*mean) map[string]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v.value()
	}
	return out
}
