package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/weatherbot/internal/metrics"
	"github.com/BaSui01/weatherbot/internal/telemetry"
	"github.com/BaSui01/weatherbot/types"
)

// Handler processes a request and returns a response.
type Handler func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

// Middleware wraps a handler with additional functionality.
type Middleware func(next Handler) Handler

// Chain represents a middleware chain.
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain creates a new middleware chain.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use adds middleware to the chain.
func (c *Chain) Use(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then wraps a handler with all middleware. The first middleware is outermost.
func (c *Chain) Then(h Handler) Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Len returns the number of middleware.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// =============================================================================
// 🔗 带中间件的 Provider
// =============================================================================

// InstrumentedProvider runs every Completion through a middleware chain.
type InstrumentedProvider struct {
	next    Provider
	handler Handler
}

var _ Provider = (*InstrumentedProvider)(nil)

// Instrument wraps next with chain.
func Instrument(next Provider, chain *Chain) *InstrumentedProvider {
	return &InstrumentedProvider{next: next, handler: chain.Then(next.Completion)}
}

// Name returns the wrapped provider's name.
func (p *InstrumentedProvider) Name() string { return p.next.Name() }

// HealthCheck delegates to the wrapped provider.
func (p *InstrumentedProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return p.next.HealthCheck(ctx)
}

// Completion runs the chain.
func (p *InstrumentedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return p.handler(ctx, req)
}

// =============================================================================
// 🧩 内置中间件
// =============================================================================

// LoggingMiddleware logs request/response details at debug level and failures at warn.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "llm"))
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			logger := logger
			if id, ok := types.ConversationID(ctx); ok {
				logger = logger.With(zap.String("conversation_id", id))
			}
			logger.Debug("completion request",
				zap.String("model", req.Model),
				zap.Int("messages", len(req.Messages)))

			resp, err := next(ctx, req)

			duration := time.Since(start)
			if err != nil {
				logger.Warn("completion failed",
					zap.String("model", req.Model),
					zap.Duration("duration", duration),
					zap.Error(err))
				return resp, err
			}
			logger.Debug("completion response",
				zap.String("model", req.Model),
				zap.Int("total_tokens", resp.Usage.TotalTokens),
				zap.Bool("cached", resp.Cached),
				zap.Duration("duration", duration))
			return resp, nil
		}
	}
}

// TimeoutMiddleware bounds each request.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			if timeout <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// RecoveryMiddleware turns a panic into a *PanicError.
func RecoveryMiddleware(onPanic func(any)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (resp *ChatResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					if onPanic != nil {
						onPanic(r)
					}
					resp, err = nil, &PanicError{Value: r}
				}
			}()
			return next(ctx, req)
		}
	}
}

// PanicError represents a recovered panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Value)
}

// MetricsMiddleware records request count, latency and token usage.
// A nil collector records nothing.
func MetricsMiddleware(collector *metrics.Collector, provider string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			status := "success"
			switch {
			case err != nil:
				status = "error"
			case resp != nil && resp.Cached:
				status = "cached"
			}
			var prompt, completion int
			if resp != nil {
				prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
			}
			collector.RecordLLMRequest(provider, req.Model, status, time.Since(start), prompt, completion)
			return resp, err
		}
	}
}

// TracingMiddleware opens an llm.completion span per request.
func TracingMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (resp *ChatResponse, err error) {
			ctx, end := telemetry.StartSpan(ctx, "llm.completion",
				attribute.String("llm.model", req.Model),
				attribute.Int("llm.messages", len(req.Messages)),
				attribute.Float64("llm.temperature", float64(req.Temperature)),
			)
			defer func() { end(err) }()
			return next(ctx, req)
		}
	}
}
