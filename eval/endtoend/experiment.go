package endtoend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BaSui01/weatherbot/eval/convlog"
	"github.com/BaSui01/weatherbot/eval/scenario"
	"github.com/BaSui01/weatherbot/eval/tracking"
	"go.uber.org/zap"
)

// Output file names.
const (
	GeneratedConvoFile = "generated_convo.json"
	RuntimeFile        = "runtime.json"
	ResultsFile        = "results.json"
	ScorePerConvoFile  = "score_per_convo.json"
	PromptsFile        = "prompts.json"
)

// ExperimentConfig configures an end-to-end run.
type ExperimentConfig struct {
	Name      string
	RunName   string
	OutputDir string
	// LogDir receives JSON and condensed conversation logs. Empty disables
	// conversation logging.
	LogDir        string
	MultiCriteria bool
	// Prompts are recorded in prompts.json next to the evaluator template.
	Prompts map[string]string
}

// DefaultExperimentConfig returns the local defaults.
func DefaultExperimentConfig() ExperimentConfig {
	return ExperimentConfig{
		Name:      "end_to_end",
		OutputDir: "output",
		LogDir:    "logs",
	}
}

// Experiment generates conversations, grades them and records the results.
type Experiment struct {
	cfg       ExperimentConfig
	runner    *scenario.Runner
	evaluator *Evaluator
	sink      tracking.Sink
	logger    *zap.Logger
}

// NewExperiment wires an experiment. A nil sink discards tracking.
func NewExperiment(cfg ExperimentConfig, runner *scenario.Runner, evaluator *Evaluator, sink tracking.Sink, logger *zap.Logger) *Experiment {
	if cfg.Name == "" {
		cfg.Name = DefaultExperimentConfig().Name
	}
	if cfg.RunName == "" {
		cfg.RunName = fmt.Sprintf("%s_run_%s", cfg.Name, time.Now().Format("2006-01-02-15-04-05"))
	}
	if sink == nil {
		sink = tracking.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Experiment{
		cfg:       cfg,
		runner:    runner,
		evaluator: evaluator,
		sink:      sink,
		logger:    logger.With(zap.String("component", "end_to_end_experiment")),
	}
}

// Run executes the experiment over rows and returns the grading report.
func (e *Experiment) Run(ctx context.Context, rows []scenario.Row) (rep *Report, err error) {
	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	e.logger.Info("experiment started",
		zap.String("experiment", e.cfg.Name),
		zap.String("run", e.cfg.RunName),
		zap.String("output", e.cfg.OutputDir))

	run, err := e.sink.StartRun(ctx, e.cfg.Name, e.cfg.RunName)
	if err != nil {
		return nil, err
	}
	defer func() {
		status := tracking.StatusFinished
		if err != nil {
			status = tracking.StatusFailed
		}
		if endErr := run.End(context.WithoutCancel(ctx), status); endErr != nil {
			e.logger.Warn("failed to end tracking run", zap.Error(endErr))
		}
	}()

	mode := ModeSingle
	if e.cfg.MultiCriteria {
		mode = ModeMulti
	}
	if err := run.SetTag(ctx, "grading_mode", mode); err != nil {
		return nil, err
	}

	res, err := e.runner.Run(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("generate conversations: %w", err)
	}
	if err := e.save(ctx, run, GeneratedConvoFile, res.Records); err != nil {
		return nil, err
	}
	if err := e.save(ctx, run, RuntimeFile, res.Runtimes); err != nil {
		return nil, err
	}

	if mode == ModeMulti {
		rep, err = e.evaluator.MultiCriteria(ctx, res.Records)
	} else {
		rep, err = e.evaluator.SingleCriterion(ctx, res.Records)
	}
	if err != nil {
		return nil, fmt.Errorf("grade conversations: %w", err)
	}

	prompts := map[string]string{"evaluator_prompt_template": e.evaluator.Template()}
	for k, v := range e.cfg.Prompts {
		prompts[k] = v
	}
	if err := e.save(ctx, run, ResultsFile, rep.Results); err != nil {
		return nil, err
	}
	if err := e.save(ctx, run, ScorePerConvoFile, rep.Scenarios); err != nil {
		return nil, err
	}
	if err := e.save(ctx, run, PromptsFile, prompts); err != nil {
		return nil, err
	}
	if err := run.LogMetrics(ctx, rep.Metrics()); err != nil {
		return nil, err
	}

	if err := e.writeLogs(res, rep); err != nil {
		return nil, err
	}

	e.logger.Info("experiment finished",
		zap.String("run_id", run.ID()),
		zap.Float64("avg_accuracy", rep.AvgAccuracy))
	return rep, nil
}

func (e *Experiment) save(ctx context.Context, run tracking.Run, name string, v any) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(e.cfg.OutputDir, name), b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := run.LogArtifact(ctx, name, v); err != nil {
		return fmt.Errorf("log artifact %s: %w", name, err)
	}
	return nil
}

// writeLogs appends every conversation to the run's JSON and condensed
// logs with its mean score as the test result.
func (e *Experiment) writeLogs(res *scenario.Result, rep *Report) error {
	if e.cfg.LogDir == "" {
		return nil
	}
	if err := os.MkdirAll(e.cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	jsonPath := filepath.Join(e.cfg.LogDir, e.cfg.RunName+".json")
	xlsxPath := filepath.Join(e.cfg.LogDir, e.cfg.RunName+".xlsx")

	scores := rep.ConversationScores()
	for _, conv := range res.Conversations {
		result := map[string]any{"mode": rep.Mode}
		if s, ok := scores[conv.ID()]; ok {
			result["score"] = s
		}
		reason := string(conv.ExitReason())
		if err := convlog.AppendJSON(jsonPath, conv, reason, result); err != nil {
			return err
		}
		if err := convlog.WriteCondensed(xlsxPath, conv, reason, result); err != nil {
			return err
		}
	}
	e.logger.Info("conversation logs written",
		zap.String("json", jsonPath),
		zap.String("condensed", xlsxPath),
		zap.Int("conversations", len(res.Conversations)))
	return nil
}
