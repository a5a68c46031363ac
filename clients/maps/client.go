package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/weatherbot/config"
	"github.com/BaSui01/weatherbot/internal/tlsutil"
	"github.com/BaSui01/weatherbot/llm/providers"
	"github.com/BaSui01/weatherbot/llm/retry"
	"github.com/BaSui01/weatherbot/types"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://atlas.microsoft.com"
	APIVersion     = "1.0"
	providerName   = "azure-maps"
)

// Config holds the Azure Maps connection settings.
type Config struct {
	BaseURL         string        `json:"base_url" yaml:"base_url"`
	SubscriptionKey string        `json:"-" yaml:"subscription_key"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	Retry           retry.Policy  `json:"-" yaml:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 15 * time.Second,
		Retry:   retry.DefaultPolicy(),
	}
}

// ConfigFrom 从应用配置构建客户端配置
func ConfigFrom(cfg config.MapsConfig) Config {
	out := DefaultConfig()
	if cfg.BaseURL != "" {
		out.BaseURL = cfg.BaseURL
	}
	out.SubscriptionKey = cfg.SubscriptionKey
	if cfg.Timeout > 0 {
		out.Timeout = cfg.Timeout
	}
	if cfg.MaxRetries >= 0 {
		out.Retry.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		out.Retry.InitialDelay = cfg.RetryDelay
	}
	return out
}

// restClient is shared by the weather and search clients.
type restClient struct {
	cfg     Config
	client  *http.Client
	retryer *retry.Retryer
	logger  *zap.Logger
}

func newRESTClient(cfg Config, logger *zap.Logger, component string) restClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	logger = logger.With(zap.String("component", component))
	return restClient{
		cfg:     cfg,
		client:  tlsutil.NewHTTPClient(tlsutil.ClientOptions{Timeout: cfg.Timeout}),
		retryer: retry.New(cfg.Retry, logger),
		logger:  logger,
	}
}

// get issues a GET against path with the standard api-version and key parameters.
func (c restClient) get(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	if c.cfg.SubscriptionKey == "" {
		return nil, types.NewError(types.ErrUnauthorized, "maps subscription key is not configured").
			WithProvider(providerName)
	}
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("api-version", APIVersion)
	q.Set("subscription-key", c.cfg.SubscriptionKey)
	endpoint := fmt.Sprintf("%s/%s?%s", strings.TrimRight(c.cfg.BaseURL, "/"), path, q.Encode())

	return retry.DoValue(ctx, c.retryer, op, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, types.NewInvalidRequestError(err.Error())
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, types.NewUpstreamError(providerName, "request failed", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 400 {
			msg := providers.ReadErrorMessage(resp.Body)
			c.logger.Warn("maps request failed",
				zap.String("op", op), zap.Int("status", resp.StatusCode), zap.String("error", msg))
			return nil, providers.MapHTTPError(resp.StatusCode, msg, providerName)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, types.NewUpstreamError(providerName, "read body", err)
		}
		return body, nil
	})
}

// WeatherClient fetches weather data for coordinates.
type WeatherClient struct {
	rest restClient
}

// NewWeatherClient creates a weather client.
func NewWeatherClient(cfg Config, logger *zap.Logger) *WeatherClient {
	return &WeatherClient{rest: newRESTClient(cfg, logger, "maps_weather")}
}

// Get returns the raw JSON payload for the requested weather type.
func (c *WeatherClient) Get(ctx context.Context, at Coordinates, wt WeatherType) (json.RawMessage, error) {
	if err := at.Validate(); err != nil {
		return nil, err
	}
	if !wt.Valid() {
		return nil, types.NewInvalidRequestError(fmt.Sprintf("unknown weather type %q", wt))
	}
	body, err := c.rest.get(ctx, "weather."+wt.Label(), "weather/"+wt.Path()+"json",
		url.Values{"query": {at.Query()}})
	if err != nil {
		return nil, fmt.Errorf("get weather %s: %w", wt.Label(), err)
	}
	return json.RawMessage(body), nil
}

// SearchClient geocodes free-text addresses.
type SearchClient struct {
	rest restClient
}

// NewSearchClient creates a search client.
func NewSearchClient(cfg Config, logger *zap.Logger) *SearchClient {
	return &SearchClient{rest: newRESTClient(cfg, logger, "maps_search")}
}

// SearchAddress returns candidate matches ordered as the service ranks them.
func (c *SearchClient) SearchAddress(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, types.NewInvalidRequestError("search query is empty")
	}
	body, err := c.rest.get(ctx, "search.address", "search/address/json", url.Values{"query": {query}})
	if err != nil {
		return nil, fmt.Errorf("search address: %w", err)
	}
	var out searchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, types.NewUpstreamError(providerName, "decode search response", err)
	}
	return out.Results, nil
}
