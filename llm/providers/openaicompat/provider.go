// =============================================================================
// OpenAI-Compatible Provider
// =============================================================================
// One HTTP implementation serves both api.openai.com style gateways and
// Azure OpenAI deployments; they differ only in URL layout and auth header.
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/weatherbot/internal/tlsutil"
	"github.com/BaSui01/weatherbot/llm"
	"github.com/BaSui01/weatherbot/llm/providers"
	"github.com/BaSui01/weatherbot/types"
	"go.uber.org/zap"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the unique identifier for this provider (e.g. "openai", "azure-openai").
	ProviderName string

	// APIKey is the authentication key for the provider's API.
	APIKey string

	// BaseURL is the base URL for the provider's API.
	BaseURL string

	// DefaultModel is the model to use when none is specified in the request.
	DefaultModel string

	// FallbackModel is used when both request and DefaultModel are empty.
	FallbackModel string

	// Timeout is the HTTP client timeout. Defaults to 60s if zero.
	Timeout time.Duration

	// EndpointPath is the chat completions endpoint path. Defaults to "/v1/chat/completions".
	EndpointPath string

	// ModelsEndpoint is the endpoint probed by HealthCheck. Defaults to "/v1/models".
	ModelsEndpoint string

	// Query is appended to every request URL (Azure's api-version).
	Query url.Values

	// OmitModel drops the model field from the body; Azure routes by deployment path instead.
	OmitModel bool

	// BuildHeaders sets auth headers. Defaults to bearer token auth.
	BuildHeaders func(req *http.Request, apiKey string)
}

// Provider is the HTTP implementation of llm.Provider.
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

var _ llm.Provider = (*Provider)(nil)

// New creates a new OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/v1/models"
	}
	if cfg.BuildHeaders == nil {
		cfg.BuildHeaders = providers.BearerTokenHeaders
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.NewHTTPClient(tlsutil.ClientOptions{Timeout: timeout}),
		Logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
}

// NewOpenAI builds a provider for api.openai.com or any compatible gateway.
func NewOpenAI(cfg providers.OpenAIConfig, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	p := New(Config{
		ProviderName:  "openai",
		APIKey:        cfg.APIKey,
		BaseURL:       baseURL,
		DefaultModel:  cfg.Model,
		FallbackModel: "gpt-4o-mini",
		Timeout:       cfg.Timeout,
	}, logger)
	if cfg.Organization != "" {
		org := cfg.Organization
		p.Cfg.BuildHeaders = func(r *http.Request, apiKey string) {
			providers.BearerTokenHeaders(r, apiKey)
			r.Header.Set("OpenAI-Organization", org)
		}
	}
	return p
}

// NewAzure builds a provider for an Azure OpenAI deployment.
func NewAzure(cfg providers.AzureOpenAIConfig, logger *zap.Logger) *Provider {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-06-01"
	}
	deployment := url.PathEscape(cfg.Deployment)
	return New(Config{
		ProviderName:   "azure-openai",
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		DefaultModel:   cfg.Deployment,
		Timeout:        cfg.Timeout,
		EndpointPath:   "/openai/deployments/" + deployment + "/chat/completions",
		ModelsEndpoint: "/openai/models",
		Query:          url.Values{"api-version": []string{apiVersion}},
		OmitModel:      true,
		BuildHeaders:   providers.AzureAPIKeyHeaders,
	}, logger)
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

// endpoint builds the full URL for a given path.
func (p *Provider) endpoint(path string) string {
	u := strings.TrimRight(p.Cfg.BaseURL, "/") + path
	if len(p.Cfg.Query) > 0 {
		u += "?" + p.Cfg.Query.Encode()
	}
	return u
}

// HealthCheck verifies the provider is reachable.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.Cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.Cfg.BuildHeaders(httpReq, p.Cfg.APIKey)

	resp, err := p.Client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("%s health check failed: status=%d msg=%s", p.Cfg.ProviderName, resp.StatusCode, msg)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, types.NewInvalidRequestError("chat request has no messages").WithProvider(p.Name())
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body := providers.OpenAICompatRequest{
		Messages:    providers.ConvertMessagesToOpenAI(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	if !p.Cfg.OmitModel {
		body.Model = providers.ChooseModel(req, p.Cfg.DefaultModel, p.Cfg.FallbackModel)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.Cfg.BuildHeaders(httpReq, p.Cfg.APIKey)

	start := time.Now()
	resp, err := p.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrUpstreamTimeout, err.Error()).
				WithCause(err).WithProvider(p.Name()).WithHTTPStatus(http.StatusGatewayTimeout).WithRetryable(true)
		}
		return nil, types.NewUpstreamError(p.Name(), "chat completion request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		p.Logger.Warn("completion rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var oaResp providers.OpenAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, types.NewUpstreamError(p.Name(), "decode completion response", err)
	}

	result := providers.ToLLMChatResponse(oaResp, p.Name())
	if oaResp.Created != 0 {
		result.CreatedAt = time.Unix(oaResp.Created, 0)
	}
	if result.Model == "" {
		result.Model = providers.ChooseModel(req, p.Cfg.DefaultModel, p.Cfg.FallbackModel)
	}

	p.Logger.Debug("completion done",
		zap.String("model", result.Model),
		zap.Int("total_tokens", result.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)))
	return result, nil
}
