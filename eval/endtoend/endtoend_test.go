package endtoend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/BaSui01/weatherbot/eval/conversation"
	"github.com/BaSui01/weatherbot/eval/convlog"
	"github.com/BaSui01/weatherbot/eval/grader"
	"github.com/BaSui01/weatherbot/eval/scenario"
	"github.com/BaSui01/weatherbot/eval/tracking"
	"github.com/BaSui01/weatherbot/internal/metrics"
	"github.com/BaSui01/weatherbot/testutil"
	"github.com/BaSui01/weatherbot/testutil/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedJudge answers by criteria text.
type scriptedJudge struct {
	mu      sync.Mutex
	answers map[string]string
	err     error
	calls   []string
}

func (j *scriptedJudge) Template() string { return "template" }

func (j *scriptedJudge) Evaluate(_ context.Context, _, criteria, _ string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, criteria)
	if j.err != nil {
		return "", j.err
	}
	return j.answers[criteria], nil
}

func (j *scriptedJudge) Validate(raw string) map[string]any {
	return grader.New(nil, "", "", nil).Validate(raw)
}

func rec(scenarioID int, category, convID, criteria, ideal string) scenario.Record {
	return scenario.Record{
		Row: scenario.Row{
			ScenarioID:     scenarioID,
			ScenarioDesc:   fmt.Sprintf("scenario %d", scenarioID),
			Category:       category,
			CriteriaPrompt: criteria,
			IdealAnswer:    ideal,
		},
		ConversationID: convID,
		History:        "ASSISTANT: hi\nUSER: rain?\n",
	}
}

// =============================================================================
// 🧪 单标准评分测试
// =============================================================================

func TestEvaluator_SingleCriterion(t *testing.T) {
	judge := &scriptedJudge{answers: map[string]string{
		"gives forecast?": `{"criteria_prompt": "gives forecast?", "explanation": "yes", "answer": "Y"}`,
		"asks location?":  "```json\n{\"answer\": \"N\", \"explanation\": \"no\"}\n```",
		"polite?":         "",
		"garbled?":        "not json",
	}}
	reg := prometheus.NewRegistry()
	e := NewEvaluator(judge, metrics.NewCollectorWith("test", reg, nil), zaptest.NewLogger(t))

	records := []scenario.Record{
		rec(1, "forecast", "c1", "gives forecast?", "Y"),
		rec(1, "forecast", "c1", "asks location?", "Y"),
		rec(2, "principles", "c2", "polite?", "Y"),
		rec(2, "principles", "c2", "garbled?", "Y"),
	}
	rep, err := e.SingleCriterion(testutil.TestContext(t), records)
	require.NoError(t, err)

	require.Len(t, rep.Results, 4)
	assert.Equal(t, 1, rep.Results[0].Score)
	assert.Equal(t, "gives forecast?", rep.Results[0].GradedCriteria)
	assert.Equal(t, 0, rep.Results[1].Score)
	assert.Equal(t, "N", rep.Results[1].Answer)
	assert.Equal(t, noOutputExplanation, rep.Results[2].Explanation)
	assert.Contains(t, rep.Results[3].Explanation, "Failed to parse")

	assert.Equal(t, ModeSingle, rep.Mode)
	assert.InDelta(t, 0.25, rep.AvgAccuracy, 1e-9)
	assert.Equal(t, map[string]float64{"scenario_1": 0.5, "scenario_2": 0}, rep.Scenarios)
	assert.Equal(t, map[string]float64{"forecast": 0.5, "principles": 0}, rep.Categories)

	m := rep.Metrics()
	assert.Equal(t, 0.25, m["avg_accuracy"])
	assert.Equal(t, 0.5, m["category_forecast"])
	assert.Equal(t, map[string]float64{"c1": 0.5, "c2": 0}, rep.ConversationScores())

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestEvaluator_SingleCriterion_GraderErrorIsRecorded(t *testing.T) {
	judge := &scriptedJudge{err: errors.New("content filter triggered")}
	e := NewEvaluator(judge, nil, nil)

	rep, err := e.SingleCriterion(testutil.TestContext(t), []scenario.Record{rec(1, "", "c1", "q", "Y")})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Results[0].Score)
	assert.Contains(t, rep.Results[0].Explanation, "Failed to parse")
	assert.Nil(t, rep.Categories)
}

func TestEvaluator_CancelledContext(t *testing.T) {
	judge := &scriptedJudge{err: context.Canceled}
	e := NewEvaluator(judge, nil, nil)
	_, err := e.SingleCriterion(testutil.CancelledContext(), []scenario.Record{rec(1, "", "c1", "q", "Y")})
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// 🧪 多标准评分测试
// =============================================================================

func TestEvaluator_MultiCriteria(t *testing.T) {
	judge := &scriptedJudge{answers: map[string]string{
		"1. a?\n2. b?\n": `{"2": {"answer": "N"}, "1": {"criteria_prompt": "a?", "answer": "Y"}}`,
		"1. c?\n":        "",
	}}
	e := NewEvaluator(judge, nil, nil)

	records := []scenario.Record{
		rec(1, "", "c1", "a?", "Y"),
		rec(1, "", "c1", "b?", "Y"),
		rec(2, "", "c2", "c?", "Y"),
	}
	rep, err := e.MultiCriteria(testutil.TestContext(t), records)
	require.NoError(t, err)

	assert.Len(t, judge.calls, 2)
	require.Len(t, rep.Results, 3)
	assert.Equal(t, 1, rep.Results[0].Score)
	assert.Equal(t, "a?", rep.Results[0].GradedCriteria)
	assert.Equal(t, 0, rep.Results[1].Score)
	assert.Equal(t, noOutputExplanation, rep.Results[2].Explanation)

	assert.Equal(t, ModeMulti, rep.Mode)
	assert.Equal(t, map[string]float64{"scenario_1": 0.5, "scenario_2": 0}, rep.Scenarios)
	assert.InDelta(t, 0.25, rep.AvgAccuracy, 1e-9)
}

func TestEvaluator_MultiCriteria_MissingGrades(t *testing.T) {
	judge := &scriptedJudge{answers: map[string]string{
		"1. a?\n2. b?\n": `{"1": {"answer": "Y"}}`,
	}}
	e := NewEvaluator(judge, nil, nil)

	rep, err := e.MultiCriteria(testutil.TestContext(t), []scenario.Record{
		rec(1, "", "c1", "a?", "Y"),
		rec(1, "", "c1", "b?", "Y"),
	})
	require.NoError(t, err)
	assert.Equal(t, notGradedExplanation, rep.Results[1].Explanation)
}

// =============================================================================
// 🧪 实验测试
// =============================================================================

type echoHarness struct{ calls int }

func (h *echoHarness) Reply(context.Context, *conversation.Conversation) (string, error) {
	h.calls++
	return fmt.Sprintf("forecast %d", h.calls), nil
}

func (h *echoHarness) Snapshot() conversation.HarnessSnapshot {
	return conversation.HarnessSnapshot{Attributes: map[string]any{"visited_agents": []string{"WeatherAgent"}}}
}

type doneUser struct{ calls int }

func (u *doneUser) Reply(context.Context, *conversation.Conversation) (string, error) {
	u.calls++
	if u.calls > 2 {
		return conversation.DoneToken, nil
	}
	return fmt.Sprintf("question %d", u.calls), nil
}

func TestExperiment_Run(t *testing.T) {
	const sheet = `scenario_id,scenario_desc,category,criteria_id,criteria_name,criteria_prompt,ideal_answer,num_convo_to_generate,profile_overrides,user_prompt
1,User asks for rain,forecast,1,rain,Does the assistant mention rain?,Y,2,,
`
	rows, err := scenario.LoadCSV(strings.NewReader(sheet))
	require.NoError(t, err)

	factory := func() (*conversation.Generator, error) {
		return conversation.NewGenerator(&echoHarness{}, &doneUser{}, conversation.WithMaxTurns(5)), nil
	}
	runner := scenario.NewRunner(scenario.DefaultRunnerConfig(), factory, nil, nil, zaptest.NewLogger(t))

	provider := mocks.NewMockProvider().WithResponse(`{"answer": "Y", "explanation": "mentions rain"}`)
	evaluator := NewEvaluator(grader.New(provider, "judge", grader.SingleCriterionTemplate, nil), nil, nil)

	dir := t.TempDir()
	sink, err := tracking.NewFileSink(filepath.Join(dir, "mlruns"), nil)
	require.NoError(t, err)

	cfg := ExperimentConfig{
		Name:      "e2e",
		RunName:   "run1",
		OutputDir: filepath.Join(dir, "out"),
		LogDir:    filepath.Join(dir, "logs"),
		Prompts:   map[string]string{"user_template": "be a customer"},
	}
	rep, err := NewExperiment(cfg, runner, evaluator, sink, zaptest.NewLogger(t)).Run(testutil.TestContext(t), rows)
	require.NoError(t, err)

	assert.Equal(t, 1.0, rep.AvgAccuracy)
	assert.Len(t, rep.Results, 2)
	assert.Equal(t, 2, provider.CallCount())

	for _, name := range []string{GeneratedConvoFile, RuntimeFile, ResultsFile, ScorePerConvoFile, PromptsFile} {
		_, err := os.Stat(filepath.Join(cfg.OutputDir, name))
		assert.NoError(t, err, name)
	}

	raw, err := os.ReadFile(filepath.Join(cfg.OutputDir, PromptsFile))
	require.NoError(t, err)
	var prompts map[string]string
	require.NoError(t, json.Unmarshal(raw, &prompts))
	assert.Equal(t, grader.SingleCriterionTemplate, prompts["evaluator_prompt_template"])
	assert.Equal(t, "be a customer", prompts["user_template"])

	entries, err := convlog.ReadFile(filepath.Join(cfg.LogDir, "run1.json"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, string(conversation.ExitUserToken), entries[0].EndReason)
	assert.EqualValues(t, 1, entries[0].TestResult["score"])

	_, err = os.Stat(filepath.Join(cfg.LogDir, "run1.xlsx"))
	assert.NoError(t, err)
}

func TestExperiment_RunFailsOnGenerationError(t *testing.T) {
	rows := []scenario.Row{{ScenarioID: 1, ScenarioDesc: "x", CriteriaPrompt: "q", NumConversations: 1}}
	factory := func() (*conversation.Generator, error) { return nil, errors.New("no model") }
	runner := scenario.NewRunner(scenario.DefaultRunnerConfig(), factory, nil, nil, nil)

	cfg := ExperimentConfig{Name: "e2e", OutputDir: t.TempDir()}
	_, err := NewExperiment(cfg, runner, NewEvaluator(&scriptedJudge{}, nil, nil), nil, nil).Run(testutil.TestContext(t), rows)
	assert.ErrorContains(t, err, "no model")
}
