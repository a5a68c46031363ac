package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/weatherbot/agent/orchestrator"
	"github.com/BaSui01/weatherbot/api/handlers"
	"github.com/BaSui01/weatherbot/config"
	"github.com/BaSui01/weatherbot/internal/metrics"
	"github.com/BaSui01/weatherbot/internal/server"
)

// sweepInterval 空闲会话清理周期
const sweepInterval = time.Minute

// skipAuthPaths 不需要认证的路径
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/metrics"}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := configFlag(fs)
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, *configPath, func(*config.Config) appOptions {
		return appOptions{database: true}
	})
	if err != nil {
		return err
	}
	defer a.logger.Sync()
	defer a.close(context.WithoutCancel(ctx))

	a.logger.Info("Starting weatherbot",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	srv := NewServer(a.cfg, a.logger, a.registry, a.collector)
	for name, ping := range a.readinessChecks() {
		srv.Health().RegisterCheck(handlers.NewPingCheck(name, ping))
	}
	if err := srv.Run(ctx, a.orchestrator()); err != nil {
		return err
	}
	a.logger.Info("weatherbot stopped")
	return nil
}

// readinessChecks 已配置的依赖
func (a *app) readinessChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if a.db != nil {
		checks["database"] = a.db.Ping
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Ping
	}
	return checks
}

// Server 组装路由、中间件和会话存储
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector

	health *handlers.HealthHandler
	store  *handlers.SessionStore
}

// NewServer 创建服务器
func NewServer(cfg *config.Config, logger *zap.Logger, registry *prometheus.Registry, collector *metrics.Collector) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		collector: collector,
		health:    handlers.NewHealthHandler(Version, logger),
		store:     handlers.NewSessionStore(handlers.DefaultStoreConfig()),
	}
}

// Health 返回健康检查处理器，用于注册依赖检查
func (s *Server) Health() *handlers.HealthHandler { return s.health }

// Handler 构建完整的 HTTP 处理链。ctx 结束时后台限流清理随之停止。
func (s *Server) Handler(ctx context.Context, replier handlers.Replier) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health.HandleHealth)
	mux.HandleFunc("GET /healthz", s.health.HandleHealth)
	mux.HandleFunc("GET /ready", s.health.HandleReady)
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}
	handlers.NewChatHandler(replier, s.store, orchestrator.Greeting, s.logger).Register(mux)

	var auths []Authenticator
	if len(s.cfg.Auth.APIKeys) > 0 {
		auths = append(auths, APIKeyAuthenticator(s.cfg.Auth.APIKeys))
	}
	if s.cfg.Auth.JWTSecret != "" {
		auths = append(auths, JWTAuthenticator(s.cfg.Auth.JWTSecret, s.cfg.Auth.JWTIssuer, s.logger))
	}

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		Auth(skipAuthPaths, s.logger, auths...),
	)
}

// Run 启动 HTTP 服务，阻塞到 ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context, replier handlers.Replier) error {
	if s.registry != nil {
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	go s.store.RunSweeper(ctx, sweepInterval)

	mgr := server.NewManager(s.Handler(ctx, replier), server.ConfigFrom(s.cfg.Server), s.logger)
	s.logger.Info("HTTP server starting",
		zap.Int("port", s.cfg.Server.HTTPPort),
		zap.Bool("tls", server.ConfigFrom(s.cfg.Server).TLSEnabled()),
		zap.Int("auth_api_keys", len(s.cfg.Auth.APIKeys)),
		zap.Bool("auth_jwt", s.cfg.Auth.JWTSecret != ""),
	)
	if err := mgr.Run(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
