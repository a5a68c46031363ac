package llm

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/weatherbot/internal/metrics"
)

// ErrCacheMiss indicates cache miss.
var ErrCacheMiss = errors.New("cache miss")

// CacheConfig configures the completion cache.
type CacheConfig struct {
	LocalMaxSize int           `json:"local_max_size"`
	LocalTTL     time.Duration `json:"local_ttl"`
	RedisTTL     time.Duration `json:"redis_ttl"`
	KeyPrefix    string        `json:"key_prefix"`
}

// DefaultCacheConfig returns sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		LocalMaxSize: 512,
		LocalTTL:     10 * time.Minute,
		RedisTTL:     24 * time.Hour,
		KeyPrefix:    "weatherbot:completion:",
	}
}

// ResponseCache 两级缓存：进程内 LRU 在前，Redis 在后（可选）。
type ResponseCache struct {
	local  *lruCache
	redis  redis.Cmdable
	config CacheConfig
	logger *zap.Logger
}

// NewResponseCache creates a response cache. rdb may be nil for local-only caching.
func NewResponseCache(rdb redis.Cmdable, config CacheConfig, logger *zap.Logger) *ResponseCache {
	def := DefaultCacheConfig()
	if config.LocalMaxSize <= 0 {
		config.LocalMaxSize = def.LocalMaxSize
	}
	if config.LocalTTL <= 0 {
		config.LocalTTL = def.LocalTTL
	}
	if config.RedisTTL <= 0 {
		config.RedisTTL = def.RedisTTL
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = def.KeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseCache{
		local:  newLRUCache(config.LocalMaxSize, config.LocalTTL),
		redis:  rdb,
		config: config,
		logger: logger.With(zap.String("component", "completion_cache")),
	}
}

// Get looks the key up locally, then in Redis. A Redis hit is promoted to the local tier.
func (c *ResponseCache) Get(ctx context.Context, key string) (*ChatResponse, error) {
	if resp, ok := c.local.get(key); ok {
		return resp, nil
	}
	if c.redis == nil {
		return nil, ErrCacheMiss
	}

	data, err := c.redis.Get(ctx, c.config.KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		c.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		return nil, ErrCacheMiss
	}

	var resp ChatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("corrupt cache entry", zap.String("key", key), zap.Error(err))
		return nil, ErrCacheMiss
	}
	c.local.set(key, &resp)
	return &resp, nil
}

// Set stores resp in both tiers.
func (c *ResponseCache) Set(ctx context.Context, key string, resp *ChatResponse) error {
	c.local.set(key, resp)
	if c.redis == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, c.config.KeyPrefix+key, data, c.config.RedisTTL).Err()
}

// CacheKey hashes the parts of a request that determine its output.
func CacheKey(req *ChatRequest) string {
	data, _ := json.Marshal(struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		MaxTokens   int       `json:"max_tokens"`
		Temperature float32   `json:"temperature"`
		Stop        []string  `json:"stop"`
	}{req.Model, req.Messages, req.MaxTokens, req.Temperature, req.Stop})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

// CachingProvider wraps a Provider and serves repeated temperature-0
// requests from a ResponseCache. The extractors and the grader run at
// temperature 0, so evaluation reruns skip most upstream calls.
type CachingProvider struct {
	next    Provider
	cache   *ResponseCache
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewCachingProvider wraps next. collector may be nil.
func NewCachingProvider(next Provider, cache *ResponseCache, collector *metrics.Collector, logger *zap.Logger) *CachingProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingProvider{next: next, cache: cache, metrics: collector, logger: logger}
}

// Name returns the wrapped provider's name.
func (p *CachingProvider) Name() string { return p.next.Name() }

// HealthCheck delegates to the wrapped provider.
func (p *CachingProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return p.next.HealthCheck(ctx)
}

// Completion serves from cache when the request is deterministic.
func (p *CachingProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req == nil || req.Temperature != 0 {
		return p.next.Completion(ctx, req)
	}

	key := CacheKey(req)
	if cached, err := p.cache.Get(ctx, key); err == nil {
		p.metrics.RecordCacheHit("llm")
		out := *cached
		out.Cached = true
		return &out, nil
	}
	p.metrics.RecordCacheMiss("llm")

	resp, err := p.next.Completion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) > 0 {
		if err := p.cache.Set(ctx, key, resp); err != nil {
			p.logger.Warn("cache set failed", zap.Error(err))
		}
	}
	return resp, nil
}

// lruCache is a fixed-capacity LRU with per-entry expiry.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	items    map[string]*list.Element
}

type lruEntry struct {
	key       string
	resp      *ChatResponse
	expiresAt time.Time
}

func newLRUCache(capacity int, ttl time.Duration) *lruCache {
	return &lruCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (*ChatResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*lruEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.resp, true
}

func (c *lruCache) set(key string, resp *ChatResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		entry := el.Value.(*lruEntry)
		entry.resp = resp
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
	c.items[key] = c.order.PushFront(&lruEntry{key: key, resp: resp, expiresAt: time.Now().Add(c.ttl)})
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
