package providers

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/weatherbot/llm"
	"github.com/BaSui01/weatherbot/llm/retry"
)

// DefaultRetryPolicy 补全请求的默认重试策略：只重试 429/5xx 等可重试错误
func DefaultRetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxRetries = 2
	return p
}

// RetryableProvider wraps an llm.Provider with exponential-backoff retry on
// errors marked retryable by MapHTTPError.
type RetryableProvider struct {
	inner   llm.Provider
	retryer *retry.Retryer
}

var _ llm.Provider = (*RetryableProvider)(nil)

// NewRetryableProvider creates a retrying wrapper around inner.
func NewRetryableProvider(inner llm.Provider, policy retry.Policy, logger *zap.Logger) *RetryableProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryableProvider{
		inner: inner,
		retryer: retry.New(policy,
			logger.With(zap.String("component", "retry_provider"), zap.String("provider", inner.Name()))),
	}
}

func (p *RetryableProvider) Name() string { return p.inner.Name() }

func (p *RetryableProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return p.inner.HealthCheck(ctx)
}

// Completion performs a chat completion with retry on transient errors.
func (p *RetryableProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return retry.DoValue(ctx, p.retryer, p.inner.Name()+".completion", func(ctx context.Context) (*llm.ChatResponse, error) {
		return p.inner.Completion(ctx, req)
	})
}
