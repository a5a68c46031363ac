package innerloop

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BaSui01/weatherbot/eval/tracking"
	"go.uber.org/zap"
)

// SourceSummary counts passes for one test data source.
type SourceSummary struct {
	Source      string  `json:"source"`
	Passed      int     `json:"passed"`
	PartialPass int     `json:"partial_passed"`
	Total       int     `json:"total"`
	PassPerc    float64 `json:"pass_perc"`
	PartialPerc float64 `json:"partial_pass_perc"`
}

// Result is the outcome of an inner-loop run.
type Result struct {
	Agent       string             `json:"agent"`
	RunID       string             `json:"run_id,omitempty"`
	Cases       []TestCase         `json:"test_case_data"`
	Averages    map[string]float64 `json:"avg_scores"`
	Overall     float64            `json:"overall_score"`
	Sources     []SourceSummary    `json:"sources"`
	Totals      SourceSummary      `json:"overall"`
	SeedPrompts map[string]string  `json:"seed_prompts"`
	ElapsedSecs float64            `json:"overall_total_time"`
}

type runOptions struct {
	sink       tracking.Sink
	experiment string
	outputDir  string
	logger     *zap.Logger
}

// Option configures Run.
type Option func(*runOptions)

// WithSink records the run in sink under experiment. An empty experiment
// uses the agent name.
func WithSink(sink tracking.Sink, experiment string) Option {
	return func(o *runOptions) {
		o.sink = sink
		o.experiment = experiment
	}
}

// WithOutputDir writes the result JSON to dir/test-results.
func WithOutputDir(dir string) Option {
	return func(o *runOptions) { o.outputDir = dir }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *runOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Run predicts and measures every case with agent. A failing prediction
// or measurement aborts the run.
func Run(ctx context.Context, agent Agent, cases []TestCase, opts ...Option) (res *Result, err error) {
	o := runOptions{sink: tracking.Nop{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.experiment == "" {
		o.experiment = agent.Name()
	}
	logger := o.logger.With(zap.String("component", "innerloop"), zap.String("agent", agent.Name()))

	runName := fmt.Sprintf("%s_run_%s", agent.Name(), time.Now().Format("2006-01-02-15-04-05"))
	run, err := o.sink.StartRun(ctx, o.experiment, runName)
	if err != nil {
		return nil, err
	}
	defer func() {
		status := tracking.StatusFinished
		if err != nil {
			status = tracking.StatusFailed
		}
		if endErr := run.End(context.WithoutCancel(ctx), status); endErr != nil {
			logger.Warn("failed to end tracking run", zap.Error(endErr))
		}
	}()

	start := time.Now()
	scored := make([]TestCase, 0, len(cases))
	report := map[string][]float64{}
	for _, tc := range cases {
		logger.Debug("test case", zap.String("test_case", tc.ID))
		out, err := agent.Predict(ctx, tc)
		if err != nil {
			return nil, fmt.Errorf("predict %s: %w", tc.ID, err)
		}
		scores, err := agent.Measure(ctx, tc, out)
		if err != nil {
			return nil, fmt.Errorf("measure %s: %w", tc.ID, err)
		}
		tc.AgentOutput = out
		tc.Scores = scores
		for k, v := range scores {
			report[k] = append(report[k], v)
		}
		scored = append(scored, tc)
	}

	res = &Result{
		Agent:       agent.Name(),
		RunID:       run.ID(),
		Cases:       scored,
		Averages:    make(map[string]float64, len(report)),
		SeedPrompts: agent.SeedPrompts(),
		ElapsedSecs: time.Since(start).Seconds(),
	}
	var overall float64
	for k, vals := range report {
		res.Averages[k] = average(vals)
		overall += res.Averages[k]
	}
	if len(report) > 0 {
		res.Overall = overall / float64(len(report))
	}
	res.Sources, res.Totals = summarize(scored)

	metrics := map[string]float64{"overall_score": res.Overall}
	for k, v := range res.Averages {
		metrics["avg_"+k] = v
	}
	if err := run.LogMetrics(ctx, metrics); err != nil {
		return nil, err
	}
	if err := run.LogArtifact(ctx, "results.json", res); err != nil {
		return nil, err
	}
	if err := run.LogArtifact(ctx, "seed_prompts.json", res.SeedPrompts); err != nil {
		return nil, err
	}

	if o.outputDir != "" {
		if err := writeResult(filepath.Join(o.outputDir, "test-results", runName+".json"), res); err != nil {
			return nil, err
		}
	}

	logger.Info("inner loop finished",
		zap.Int("cases", len(scored)),
		zap.Float64("overall_score", res.Overall),
		zap.String("passed", fmt.Sprintf("%d/%d", res.Totals.Passed, res.Totals.Total)),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

func average(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// summarize counts exact_match passes (== 1) and partial passes (0 < x < 1)
// per source and overall.
func summarize(cases []TestCase) ([]SourceSummary, SourceSummary) {
	bySource := map[string]*SourceSummary{}
	total := SourceSummary{Source: "overall"}
	for _, tc := range cases {
		s, ok := bySource[tc.Source]
		if !ok {
			s = &SourceSummary{Source: tc.Source}
			bySource[tc.Source] = s
		}
		score := tc.Scores[MetricExactMatch]
		for _, sum := range []*SourceSummary{s, &total} {
			sum.Total++
			switch {
			case score == 1:
				sum.Passed++
			case score > 0 && score < 1:
				sum.PartialPass++
			}
		}
	}

	out := make([]SourceSummary, 0, len(bySource))
	for _, s := range bySource {
		s.percentages()
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	total.percentages()
	return out, total
}

func (s *SourceSummary) percentages() {
	if s.Total == 0 {
		return
	}
	s.PassPerc = math.Round(float64(s.Passed) / float64(s.Total) * 100)
	s.PartialPerc = math.Round(float64(s.PartialPass) / float64(s.Total) * 100)
}

func writeResult(path string, res *Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create result dir: %w", err)
	}
	b, err := json.MarshalIndent(res, "", "    ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}
