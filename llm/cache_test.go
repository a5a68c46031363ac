package llm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/weatherbot/internal/metrics"
	"github.com/BaSui01/weatherbot/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 ResponseCache / CachingProvider 测试
// =============================================================================

type countingProvider struct {
	calls atomic.Int32
	reply string
}

func (p *countingProvider) Completion(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	p.calls.Add(1)
	return &ChatResponse{
		Model:   req.Model,
		Choices: []ChatChoice{{Message: types.NewAssistantMessage(p.reply)}},
	}, nil
}

func (p *countingProvider) HealthCheck(context.Context) (*HealthStatus, error) {
	return &HealthStatus{Healthy: true}, nil
}

func (p *countingProvider) Name() string { return "counting" }

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestResponseCache_RedisRoundTrip(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	ctx := context.Background()

	cache := NewResponseCache(rdb, CacheConfig{}, zap.NewNop())
	resp := &ChatResponse{Model: "gpt-4o", Choices: []ChatChoice{{Message: types.NewAssistantMessage("LOCATION UNKNOWN")}}}
	require.NoError(t, cache.Set(ctx, "k1", resp))

	assert.True(t, mr.Exists("weatherbot:completion:k1"))

	// 新实例只有 Redis 层，命中后回填本地层
	fresh := NewResponseCache(rdb, CacheConfig{}, zap.NewNop())
	got, err := fresh.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "LOCATION UNKNOWN", got.Choices[0].Message.Content)
	assert.Equal(t, 1, fresh.local.len())
}

func TestResponseCache_Miss(t *testing.T) {
	_, rdb := setupTestRedis(t)
	cache := NewResponseCache(rdb, CacheConfig{}, nil)

	_, err := cache.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)

	localOnly := NewResponseCache(nil, CacheConfig{}, nil)
	_, err = localOnly.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestResponseCache_RedisTTL(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	cache := NewResponseCache(rdb, CacheConfig{RedisTTL: time.Minute}, nil)
	require.NoError(t, cache.Set(context.Background(), "ttl", &ChatResponse{}))

	assert.Equal(t, time.Minute, mr.TTL("weatherbot:completion:ttl"))
}

func TestLRUCache_EvictsOldest(t *testing.T) {
	c := newLRUCache(2, time.Minute)
	c.set("a", &ChatResponse{ID: "a"})
	c.set("b", &ChatResponse{ID: "b"})

	_, ok := c.get("a") // a becomes most recent
	require.True(t, ok)

	c.set("c", &ChatResponse{ID: "c"})
	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_Expiry(t *testing.T) {
	c := newLRUCache(4, time.Millisecond)
	c.set("a", &ChatResponse{})
	time.Sleep(5 * time.Millisecond)
	_, ok := c.get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.len())
}

func TestCachingProvider(t *testing.T) {
	_, rdb := setupTestRedis(t)
	next := &countingProvider{reply: "CURRENT_CONDITIONS"}
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWith("test", reg, zap.NewNop())
	p := NewCachingProvider(next, NewResponseCache(rdb, CacheConfig{}, nil), collector, nil)
	ctx := context.Background()

	req := &ChatRequest{Model: "gpt-4o", Messages: []Message{types.NewSystemMessage("classify")}}

	t.Run("deterministic requests hit cache", func(t *testing.T) {
		first, err := p.Completion(ctx, req)
		require.NoError(t, err)
		assert.False(t, first.Cached)

		second, err := p.Completion(ctx, req)
		require.NoError(t, err)
		assert.True(t, second.Cached)
		assert.Equal(t, "CURRENT_CONDITIONS", second.Choices[0].Message.Content)
		assert.Equal(t, int32(1), next.calls.Load())

		assert.Equal(t, 1.0, counterValue(t, reg, "test_cache_hits_total"))
		assert.Equal(t, 1.0, counterValue(t, reg, "test_cache_misses_total"))
	})

	t.Run("sampled requests bypass cache", func(t *testing.T) {
		before := next.calls.Load()
		hot := *req
		hot.Temperature = 0.7
		_, err := p.Completion(ctx, &hot)
		require.NoError(t, err)
		_, err = p.Completion(ctx, &hot)
		require.NoError(t, err)
		assert.Equal(t, before+2, next.calls.Load())
	})

	// 非确定性请求不计入缓存指标
	assert.Equal(t, 1.0, counterValue(t, reg, "test_cache_misses_total"))
	assert.Equal(t, "counting", p.Name())
}

func TestCachingProvider_NilCollector(t *testing.T) {
	_, rdb := setupTestRedis(t)
	p := NewCachingProvider(&countingProvider{reply: "ok"}, NewResponseCache(rdb, CacheConfig{}, nil), nil, nil)
	req := &ChatRequest{Model: "m"}
	for i := 0; i < 2; i++ {
		_, err := p.Completion(context.Background(), req)
		require.NoError(t, err)
	}
}

// counterValue 汇总某个计数器所有标签下的值
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestCacheKey_StableAndSensitive(t *testing.T) {
	a := &ChatRequest{Model: "m", Messages: []Message{types.NewUserMessage("x")}}
	b := &ChatRequest{Model: "m", Messages: []Message{types.NewUserMessage("x")}}
	c := &ChatRequest{Model: "m", Messages: []Message{types.NewUserMessage("y")}}

	assert.Equal(t, CacheKey(a), CacheKey(b))
	assert.NotEqual(t, CacheKey(a), CacheKey(c))
	assert.Len(t, CacheKey(a), 32)
}
