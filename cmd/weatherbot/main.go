// =============================================================================
// weatherbot 主入口
// =============================================================================
// 天气聊天机器人及其评测工具
//
// 使用方法:
//
//	weatherbot chat                         # 命令行对话
//	weatherbot serve --config config.yaml   # 启动 HTTP 服务
//	weatherbot generate                     # 交互式生成对话日志
//	weatherbot evaluate --scenarios s.csv   # 端到端评测
//	weatherbot agent-test --agent WeatherExtractor --data test-data/
//	weatherbot extract --logs logs/ --select '{"*": "*"}' --out cases.json
//	weatherbot version
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/weatherbot/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "chat":
		err = runChat(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "generate":
		err = runGenerate(os.Args[2:])
	case "evaluate":
		err = runEvaluate(os.Args[2:])
	case "agent-test":
		err = runAgentTest(os.Args[2:])
	case "extract":
		err = runExtract(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "weatherbot %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// bootstrap 解析 --config，加载配置并初始化日志与依赖
func bootstrap(ctx context.Context, configPath string, opts func(*config.Config) appOptions) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := initLogger(cfg.Log)

	var o appOptions
	if opts != nil {
		o = opts(cfg)
	}
	a, err := newApp(ctx, cfg, logger, o)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	logger.Debug("weatherbot initialized",
		zap.String("version", Version),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.ModelName()),
	)
	return a, nil
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "Path to config file (YAML)")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("weatherbot %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`weatherbot - weather chatbot and evaluation harness

Usage:
  weatherbot <command> [options]

Commands:
  chat         Chat with the assistant in the terminal
  serve        Start the HTTP chat API
  generate     Interactively generate conversations with an emulated user
  evaluate     Run an end-to-end experiment over a scenario CSV
  agent-test   Run an inner-loop experiment for one agent
  extract      Extract test cases from JSON conversation logs
  version      Show version information
  help         Show this help message

Every command accepts --config <path>. A .env file in the working
directory is loaded before the config.

Options for 'evaluate':
  --scenarios <csv>    Scenario CSV (required)
  --output <dir>       Output folder (default: eval.output_dir)
  --multi              Grade all criteria of a conversation in one call
  --concurrency <n>    Conversations generated in parallel

Options for 'agent-test':
  --agent <name>       LocationExtractor, LocationAssistant, WeatherExtractor or WeatherAssistant
  --data <path>        Test case file or folder; repeatable

Options for 'extract':
  --logs <dir|file>    JSON conversation logs
  --select <json>      Conversation and message ids, e.g. {"*": "*"} or {"<id>": [2, 4]}
  --out <file>         Where to write the test cases

Examples:
  weatherbot serve --config /etc/weatherbot/config.yaml
  weatherbot evaluate --scenarios scenarios.csv --multi --concurrency 4
  weatherbot agent-test --agent WeatherExtractor --data test-data/weather
  weatherbot version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
