// Package factory builds the completion provider stack from configuration.
// It lives outside package llm so it can import the provider sub-packages.
package factory

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/weatherbot/config"
	"github.com/BaSui01/weatherbot/internal/metrics"
	"github.com/BaSui01/weatherbot/llm"
	"github.com/BaSui01/weatherbot/llm/providers"
	"github.com/BaSui01/weatherbot/llm/providers/openaicompat"
	"github.com/BaSui01/weatherbot/llm/retry"
)

// Options tunes the layers Build puts around the HTTP provider.
type Options struct {
	// Retry defaults to providers.DefaultRetryPolicy when MaxRetries is zero.
	Retry     retry.Policy
	Cache     *llm.ResponseCache
	Collector *metrics.Collector
	Logger    *zap.Logger
}

// NewProvider creates the bare HTTP provider named by cfg.Provider.
//
// Supported names: azure, openai.
func NewProvider(cfg config.LLMConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := providers.BaseProviderConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}

	switch cfg.Provider {
	case "azure", "azure-openai":
		if cfg.BaseURL == "" || cfg.Deployment == "" {
			return nil, fmt.Errorf("azure provider requires base_url and deployment")
		}
		return openaicompat.NewAzure(providers.AzureOpenAIConfig{
			BaseProviderConfig: base,
			Deployment:         cfg.Deployment,
			APIVersion:         cfg.APIVersion,
		}, logger), nil

	case "openai":
		return openaicompat.NewOpenAI(providers.OpenAIConfig{
			BaseProviderConfig: base,
			Organization:       cfg.Organization,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Build returns the provider every component talks to:
//
//	recovery → tracing → metrics → logging → timeout → cache → retry → HTTP
//
// Cached responses are still counted, with status "cached".
func Build(cfg config.LLMConfig, opts Options) (llm.Provider, error) {
	raw, err := NewProvider(cfg, opts.Logger)
	if err != nil {
		return nil, err
	}
	return Wrap(raw, cfg.Timeout, opts), nil
}

// Wrap layers retry, cache and the instrumentation chain around p.
// perAttempt bounds a single upstream call; zero leaves only the HTTP client timeout.
func Wrap(p llm.Provider, perAttempt time.Duration, opts Options) llm.Provider {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	policy := opts.Retry
	if policy.MaxRetries == 0 {
		policy = providers.DefaultRetryPolicy()
	}
	var next llm.Provider = providers.NewRetryableProvider(p, policy, logger)
	if opts.Cache != nil {
		next = llm.NewCachingProvider(next, opts.Cache, opts.Collector, logger)
	}

	var total time.Duration
	if perAttempt > 0 {
		total = perAttempt * time.Duration(policy.MaxRetries+1)
	}
	chain := llm.NewChain(
		llm.RecoveryMiddleware(func(v any) {
			logger.Error("completion panicked", zap.Any("panic", v))
		}),
		llm.TracingMiddleware(),
		llm.MetricsMiddleware(opts.Collector, p.Name()),
		llm.LoggingMiddleware(logger),
		llm.TimeoutMiddleware(total),
	)
	return llm.Instrument(next, chain)
}
