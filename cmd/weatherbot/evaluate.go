package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/weatherbot/config"
	"github.com/BaSui01/weatherbot/eval/conversation"
	"github.com/BaSui01/weatherbot/eval/endtoend"
	"github.com/BaSui01/weatherbot/eval/grader"
	"github.com/BaSui01/weatherbot/eval/innerloop"
	"github.com/BaSui01/weatherbot/eval/scenario"
)

// stringList 可重复的字符串参数
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func trackingOptions(cfg *config.Config) appOptions {
	return appOptions{database: cfg.Eval.Tracking == "gorm"}
}

// =============================================================================
// 📊 evaluate 命令
// =============================================================================

func runEvaluate(args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	configPath := configFlag(fs)
	scenarios := fs.String("scenarios", "", "Scenario CSV (required)")
	output := fs.String("output", "", "Output folder (default: eval.output_dir)")
	multi := fs.Bool("multi", false, "Grade all criteria of a conversation in one call")
	concurrency := fs.Int("concurrency", 0, "Conversations generated in parallel (default: eval.concurrency)")
	runName := fs.String("run-name", "", "Tracking run name")
	_ = fs.Parse(args)

	if *scenarios == "" {
		return errors.New("--scenarios is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	f, err := os.Open(*scenarios)
	if err != nil {
		return fmt.Errorf("open scenarios: %w", err)
	}
	rows, err := scenario.LoadCSV(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	principles, err := scenario.Principles()
	if err != nil {
		return err
	}

	a, err := bootstrap(ctx, *configPath, trackingOptions)
	if err != nil {
		return err
	}
	defer a.logger.Sync()
	defer a.close(context.WithoutCancel(ctx))

	cfg := a.cfg.Eval
	if *output != "" {
		cfg.OutputDir = *output
	}
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}
	cfg.MultiCriteria = cfg.MultiCriteria || *multi

	sink, err := a.trackingSink()
	if err != nil {
		return err
	}

	runner := scenario.NewRunner(scenario.RunnerConfig{
		DefaultConversations: cfg.DefaultConversation,
		Concurrency:          cfg.Concurrency,
		RetryLimit:           cfg.RetryLimit,
	}, func() (*conversation.Generator, error) {
		return a.generator(a.customer()), nil
	}, scenario.StandardProfiles, principles, a.logger)

	template := grader.SingleCriterionTemplate
	if cfg.MultiCriteria {
		template = grader.MultiCriteriaTemplate
	}
	evaluator := endtoend.NewEvaluator(grader.New(a.provider, a.model(), template, a.logger), a.collector, a.logger)

	exp := endtoend.NewExperiment(endtoend.ExperimentConfig{
		Name:          cfg.Experiment,
		RunName:       *runName,
		OutputDir:     cfg.OutputDir,
		LogDir:        cfg.LogDir,
		MultiCriteria: cfg.MultiCriteria,
		Prompts:       a.seedPrompts(),
	}, runner, evaluator, sink, a.logger)

	a.logger.Info("end-to-end evaluation started",
		zap.String("scenarios", *scenarios),
		zap.Int("rows", len(rows)),
		zap.Bool("multi_criteria", cfg.MultiCriteria),
		zap.Int("concurrency", cfg.Concurrency),
	)
	rep, err := exp.Run(ctx, rows)
	if err != nil {
		return err
	}
	printMetrics(os.Stdout, rep.Mode, rep.Metrics())
	return nil
}

// printMetrics 按名称排序输出指标
func printMetrics(w io.Writer, title string, metrics map[string]float64) {
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-40s %.3f\n", k, metrics[k])
	}
}

// =============================================================================
// 🧪 agent-test 命令
// =============================================================================

func runAgentTest(args []string) error {
	fs := flag.NewFlagSet("agent-test", flag.ExitOnError)
	configPath := configFlag(fs)
	agentName := fs.String("agent", "", "Agent to test: "+strings.Join(innerloop.AgentNames(), ", "))
	output := fs.String("output", "", "Output folder (default: eval.output_dir)")
	experiment := fs.String("experiment", "", "Tracking experiment (default: agent name)")
	judgeModel := fs.String("judge-model", "", "Model grading assistant replies (default: llm model)")
	var data stringList
	fs.Var(&data, "data", "Test case file or folder; repeatable")
	_ = fs.Parse(args)

	if *agentName == "" {
		return errors.New("--agent is required")
	}
	if len(data) == 0 {
		return errors.New("--data is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cases, err := innerloop.LoadTestCases(data)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return fmt.Errorf("no test cases found in %s", data.String())
	}

	a, err := bootstrap(ctx, *configPath, trackingOptions)
	if err != nil {
		return err
	}
	defer a.logger.Sync()
	defer a.close(context.WithoutCancel(ctx))

	deps := a.agentDeps()
	deps.JudgeModel = *judgeModel
	agent, err := innerloop.NewAgent(*agentName, deps)
	if err != nil {
		return err
	}
	sink, err := a.trackingSink()
	if err != nil {
		return err
	}
	outDir := a.cfg.Eval.OutputDir
	if *output != "" {
		outDir = *output
	}

	res, err := innerloop.Run(ctx, agent, cases,
		innerloop.WithSink(sink, *experiment),
		innerloop.WithOutputDir(outDir),
		innerloop.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	metrics := map[string]float64{"overall_score": res.Overall}
	for k, v := range res.Averages {
		metrics["avg_"+k] = v
	}
	printMetrics(os.Stdout, res.Agent, metrics)
	fmt.Printf("  passed %d/%d, partially passed %d\n", res.Totals.Passed, res.Totals.Total, res.Totals.PartialPass)
	return nil
}

// =============================================================================
// ✂️ extract 命令
// =============================================================================

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	logs := fs.String("logs", "", "JSON conversation log file or folder (required)")
	selection := fs.String("select", `{"*": "*"}`, "Conversation ids mapped to message ids")
	out := fs.String("out", "", "Test case file to write (required)")
	_ = fs.Parse(args)

	if *logs == "" || *out == "" {
		return errors.New("--logs and --out are required")
	}
	n, err := extractTestCases(*logs, *selection, *out)
	if err != nil {
		return err
	}
	fmt.Printf("Extracted %d test cases to %s\n", n, *out)
	return nil
}

func extractTestCases(logs, selection, out string) (int, error) {
	sel, err := innerloop.ParseSelection(selection)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(logs)
	if err != nil {
		return 0, err
	}

	var cases []innerloop.TestCase
	if info.IsDir() {
		cases, err = innerloop.ExtractDir(logs, sel)
	} else {
		var f *os.File
		if f, err = os.Open(logs); err != nil {
			return 0, err
		}
		cases, err = innerloop.Extract(f, sel)
		_ = f.Close()
	}
	if err != nil {
		return 0, err
	}
	if err := innerloop.WriteTestCases(out, cases); err != nil {
		return 0, err
	}
	return len(cases), nil
}
