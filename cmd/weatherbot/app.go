package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/weatherbot/agent/location"
	"github.com/BaSui01/weatherbot/agent/orchestrator"
	"github.com/BaSui01/weatherbot/agent/weather"
	"github.com/BaSui01/weatherbot/clients/maps"
	"github.com/BaSui01/weatherbot/config"
	"github.com/BaSui01/weatherbot/eval/conversation"
	"github.com/BaSui01/weatherbot/eval/harness"
	"github.com/BaSui01/weatherbot/eval/innerloop"
	"github.com/BaSui01/weatherbot/eval/tracking"
	"github.com/BaSui01/weatherbot/eval/user"
	"github.com/BaSui01/weatherbot/internal/cache"
	"github.com/BaSui01/weatherbot/internal/database"
	"github.com/BaSui01/weatherbot/internal/metrics"
	"github.com/BaSui01/weatherbot/internal/telemetry"
	"github.com/BaSui01/weatherbot/llm"
	"github.com/BaSui01/weatherbot/llm/factory"
	"github.com/BaSui01/weatherbot/llm/tokenizer"
)

// =============================================================================
// 🧩 应用装配
// =============================================================================

// app 持有一次命令运行所需的全部依赖
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *prometheus.Registry
	collector *metrics.Collector
	otel      *telemetry.Providers

	db    *database.PoolManager
	redis *cache.Manager

	provider llm.Provider
	search   *maps.SearchClient
	weather  *maps.WeatherClient
	counter  tokenizer.Counter
}

// appOptions 控制可选依赖
type appOptions struct {
	// database 打开追踪库；chat/generate 不需要
	database bool
}

// loadConfig 先加载 .env，再按 默认值 → YAML → 环境变量 加载配置
func loadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts appOptions) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.collector = metrics.NewCollectorWith("weatherbot", a.registry, logger)

	otelProviders, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	a.otel = otelProviders

	if opts.database && cfg.Database.Driver != "" {
		db, err := database.Open(cfg.Database, logger, database.WithMetrics(a.collector))
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.db = db
	}

	var responseCache *llm.ResponseCache
	if cfg.Cache.Enabled {
		var rdb redis.Cmdable
		mgr, err := cache.NewManager(ctx, cache.ConfigFrom(cfg.Cache), logger, a.collector)
		if err != nil {
			// 降级为仅进程内 LRU
			logger.Warn("redis unavailable, using local response cache only", zap.Error(err))
		} else {
			a.redis = mgr
			rdb = mgr.Client()
		}
		responseCache = llm.NewResponseCache(rdb, llm.CacheConfig{
			LocalMaxSize: cfg.Cache.LocalSize,
			LocalTTL:     cfg.Cache.LocalTTL,
			RedisTTL:     cfg.Cache.TTL,
		}, logger)
	}

	a.provider, err = factory.Build(cfg.LLM, factory.Options{
		Cache:     responseCache,
		Collector: a.collector,
		Logger:    logger,
	})
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("build llm provider: %w", err)
	}

	mapsCfg := maps.ConfigFrom(cfg.Maps)
	a.search = maps.NewSearchClient(mapsCfg, logger)
	a.weather = maps.NewWeatherClient(mapsCfg, logger)

	if cfg.Eval.MaxHistoryTokens > 0 {
		a.counter = tokenizer.NewTiktoken(cfg.LLM.ModelName(), logger)
	}
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", zap.Error(err))
		}
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown telemetry", zap.Error(err))
		}
	}
}

// model 返回请求使用的模型名（Azure 下为部署名）
func (a *app) model() string { return a.cfg.LLM.ModelName() }

// orchestrator 组装 location → weather 代理链
func (a *app) orchestrator() *orchestrator.Orchestrator {
	model := a.model()
	agents := []orchestrator.Agent{
		location.NewAgent(
			location.NewExtractor(a.provider, model, a.search, a.logger),
			location.NewAssistant(a.provider, model),
		),
		weather.NewAgent(
			weather.NewExtractor(a.provider, model),
			weather.NewAssistant(a.provider, model, a.weather, a.logger),
		),
	}
	return orchestrator.New(agents,
		orchestrator.WithMetrics(a.collector),
		orchestrator.WithLogger(a.logger),
	)
}

// harness 为一段对话创建独立的被测助手
func (a *app) harness() *harness.OrchestratorHarness {
	opts := []harness.Option{harness.WithLogger(a.logger)}
	if a.counter != nil {
		opts = append(opts, harness.WithTokenBudget(a.counter, a.cfg.Eval.MaxHistoryTokens))
	}
	return harness.New(a.orchestrator(), opts...)
}

func (a *app) customer() *user.CustomerChat {
	return user.NewCustomerChat(a.provider, a.model())
}

// generator 创建一个互不共享状态的对话生成器
func (a *app) generator(u conversation.User) *conversation.Generator {
	return conversation.NewGenerator(a.harness(), u,
		conversation.WithMaxTurns(a.cfg.Eval.MaxTurns),
		conversation.WithLogger(a.logger),
		conversation.WithMetrics(a.collector),
	)
}

func (a *app) agentDeps() innerloop.Deps {
	return innerloop.Deps{
		Provider: a.provider,
		Model:    a.model(),
		Geocoder: a.search,
		Weather:  a.weather,
		Logger:   a.logger,
	}
}

// seedPrompts 汇总各代理的提示词，写入 prompts.json
func (a *app) seedPrompts() map[string]string {
	out := map[string]string{}
	for _, name := range innerloop.AgentNames() {
		agent, err := innerloop.NewAgent(name, a.agentDeps())
		if err != nil {
			continue
		}
		for k, v := range agent.SeedPrompts() {
			out[k] = v
		}
	}
	return out
}

func (a *app) trackingSink() (tracking.Sink, error) {
	return tracking.FromConfig(a.cfg.Eval, a.db, a.logger)
}
