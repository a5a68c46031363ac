package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/weatherbot/config"
	"github.com/BaSui01/weatherbot/internal/metrics"
)

// ErrClosed 管理器已关闭
var ErrClosed = errors.New("cache manager is closed")

// =============================================================================
// 💾 Redis 连接管理器
// =============================================================================

// Config Redis 连接配置
type Config struct {
	Addr                string
	Password            string
	DB                  int
	PoolSize            int
	MinIdleConns        int
	MaxRetries          int
	DialTimeout         time.Duration
	HealthCheckInterval time.Duration
}

// DefaultConfig 返回默认连接配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		PoolSize:            10,
		MinIdleConns:        2,
		MaxRetries:          3,
		DialTimeout:         5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// ConfigFrom 从应用配置构造连接配置
func ConfigFrom(cfg config.CacheConfig) Config {
	c := DefaultConfig()
	if cfg.RedisAddr != "" {
		c.Addr = cfg.RedisAddr
	}
	c.Password = cfg.RedisPassword
	c.DB = cfg.RedisDB
	if cfg.PoolSize > 0 {
		c.PoolSize = cfg.PoolSize
	}
	return c
}

// Manager 持有 Redis 客户端，供补全缓存与就绪检查共用
type Manager struct {
	client    *redis.Client
	config    Config
	logger    *zap.Logger
	collector *metrics.Collector

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewManager 建立连接并确认可达
func NewManager(ctx context.Context, cfg Config, logger *zap.Logger, collector *metrics.Collector) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		client:    client,
		config:    cfg,
		logger:    logger.With(zap.String("component", "redis")),
		collector: collector,
		done:      make(chan struct{}),
	}

	if cfg.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	m.logger.Info("redis connected",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize),
	)
	return m, nil
}

// Client 返回底层客户端
func (m *Manager) Client() redis.Cmdable {
	return m.client
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return m.client.Ping(ctx).Err()
}

// Close 关闭连接并停止健康检查
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.logger.Info("closing redis connection")
	return m.client.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.checkOnce()
		}
	}
}

func (m *Manager) checkOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.Ping(ctx); err != nil {
		if !errors.Is(err, ErrClosed) {
			m.logger.Error("redis health check failed", zap.Error(err))
		}
		return
	}

	stats := m.client.PoolStats()
	m.collector.RecordDBConnections("redis", int(stats.TotalConns-stats.IdleConns), int(stats.IdleConns))
}
