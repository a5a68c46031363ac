package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/weatherbot/agent/session"
	"github.com/BaSui01/weatherbot/config"
	"github.com/BaSui01/weatherbot/internal/ctxkeys"
	"github.com/BaSui01/weatherbot/internal/metrics"
	"github.com/BaSui01/weatherbot/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

// =============================================================================
// 🧪 基础中间件
// =============================================================================

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestChain_FirstMiddlewareOutermost(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(okHandler(), mark("a"), mark("b"), mark("c"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ctxkeys.RequestID(r.Context())
	})
	handler := RequestID()(inner)

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		assert.Equal(t, w.Header().Get("X-Request-ID"), seen)
	})

	t.Run("client supplied", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "abc-123")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
		assert.Equal(t, "abc-123", seen)
	})

	t.Run("oversized replaced", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", strings.Repeat("x", 200))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Len(t, w.Header().Get("X-Request-ID"), 36)
	})
}

func TestRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := Recovery(zap.NewNop())(panicking)

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrInternalError))
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(okHandler())

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"allowed origin", http.MethodGet, "https://app.example.com", http.StatusOK, "https://app.example.com"},
		{"unknown origin passes without headers", http.MethodGet, "https://evil.example.com", http.StatusOK, ""},
		{"no origin", http.MethodGet, "", http.StatusOK, ""},
		{"preflight allowed", http.MethodOptions, "https://app.example.com", http.StatusNoContent, "https://app.example.com"},
		{"preflight rejected", http.MethodOptions, "https://evil.example.com", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/v1/chat/sessions", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("burst exhausted", func(t *testing.T) {
		handler := RateLimiter(ctx, 1, 2, zap.NewNop())(okHandler())
		codes := make([]int, 0, 3)
		for range 3 {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = "10.0.0.1:1234"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			codes = append(codes, w.Code)
		}
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})

	t.Run("limits are per ip", func(t *testing.T) {
		handler := RateLimiter(ctx, 1, 1, zap.NewNop())(okHandler())
		for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = addr
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, http.StatusOK, w.Code, addr)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		handler := RateLimiter(ctx, 0, 0, zap.NewNop())(okHandler())
		for range 10 {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, w.Code)
		}
	})
}

// =============================================================================
// 📈 指标
// =============================================================================

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/v1/chat/sessions", "/v1/chat/sessions"},
		{"/v1/chat/sessions/3f2a8c1e-1b2c-4d5e-8f90-a1b2c3d4e5f6", "/v1/chat/sessions/:id"},
		{"/v1/chat/sessions/3f2a8c1e-1b2c-4d5e-8f90-a1b2c3d4e5f6/messages", "/v1/chat/sessions/:id/messages"},
		{"/v1/items/42", "/v1/items/:id"},
		{"/v1/chat", "/v1/chat"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.in))
		})
	}
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWith("test", reg, zap.NewNop())
	handler := MetricsMiddleware(collector)(okHandler())

	for range 2 {
		r := httptest.NewRequest(http.MethodGet, "/v1/chat/sessions/3f2a8c1e-1b2c-4d5e-8f90-a1b2c3d4e5f6", nil)
		handler.ServeHTTP(httptest.NewRecorder(), r)
	}

	count, err := testutil.GatherAndCount(reg, "test_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "dynamic segments share one series")
}

func TestMetricsMiddleware_NilCollector(t *testing.T) {
	handler := MetricsMiddleware(nil)(okHandler())
	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// 🔐 认证
// =============================================================================

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuth(t *testing.T) {
	const secret = "test-secret"
	var subject string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = ctxkeys.Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Auth(skipAuthPaths, zap.NewNop(),
		APIKeyAuthenticator([]string{"key-1"}),
		JWTAuthenticator(secret, "weatherbot", zap.NewNop()),
	)(inner)

	valid := signToken(t, secret, jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "weatherbot",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	wrongIssuer := signToken(t, secret, jwt.RegisteredClaims{Subject: "mallory", Issuer: "other"})
	wrongKey := signToken(t, "another-secret", jwt.RegisteredClaims{Subject: "mallory", Issuer: "weatherbot"})
	expired := signToken(t, secret, jwt.RegisteredClaims{
		Issuer:    "weatherbot",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})

	tests := []struct {
		name        string
		method      string
		path        string
		header      string
		value       string
		wantStatus  int
		wantSubject string
	}{
		{"api key", http.MethodPost, "/v1/chat/sessions", "X-API-Key", "key-1", http.StatusOK, "api-key"},
		{"bad api key", http.MethodPost, "/v1/chat/sessions", "X-API-Key", "nope", http.StatusUnauthorized, ""},
		{"jwt", http.MethodPost, "/v1/chat/sessions", "Authorization", "Bearer " + valid, http.StatusOK, "alice"},
		{"jwt wrong issuer", http.MethodPost, "/v1/chat/sessions", "Authorization", "Bearer " + wrongIssuer, http.StatusUnauthorized, ""},
		{"jwt wrong key", http.MethodPost, "/v1/chat/sessions", "Authorization", "Bearer " + wrongKey, http.StatusUnauthorized, ""},
		{"jwt expired", http.MethodPost, "/v1/chat/sessions", "Authorization", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"no credentials", http.MethodPost, "/v1/chat/sessions", "", "", http.StatusUnauthorized, ""},
		{"health skipped", http.MethodGet, "/health", "", "", http.StatusOK, ""},
		{"metrics skipped", http.MethodGet, "/metrics", "", "", http.StatusOK, ""},
		{"preflight skipped", http.MethodOptions, "/v1/chat/sessions", "", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject = ""
			r := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantSubject, subject)
		})
	}
}

func TestAuth_NoAuthenticatorsDisabled(t *testing.T) {
	handler := Auth(nil, zap.NewNop())(okHandler())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/chat/sessions", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// 🖥️ 完整处理链
// =============================================================================

// echoReplier 复述用户消息
type echoReplier struct{}

func (echoReplier) Reply(_ context.Context, userMessage string, sess *session.Context) (string, error) {
	sess.AddMessage(types.RoleUser, userMessage)
	reply := "you said: " + userMessage
	sess.AddMessage(types.RoleAssistant, reply)
	return reply, nil
}

func newTestHandler(t *testing.T, mutate func(*config.Config)) (http.Handler, *prometheus.Registry) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.RateLimitRPS = 0
	if mutate != nil {
		mutate(cfg)
	}
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWith("weatherbot", reg, zap.NewNop())
	srv := NewServer(cfg, zap.NewNop(), reg, collector)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return srv.Handler(ctx, echoReplier{}), reg
}

func TestServerHandler_ChatFlow(t *testing.T) {
	handler, reg := newTestHandler(t, nil)

	// 创建会话
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/chat/sessions", nil))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var created struct {
		Success bool `json:"success"`
		Data    struct {
			ID    string `json:"id"`
			Reply string `json:"reply"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.True(t, created.Success)
	require.NotEmpty(t, created.Data.ID)

	// 发送消息
	body := strings.NewReader(`{"content":"hello"}`)
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/sessions/"+created.Data.ID+"/messages", body)
	r.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "you said: hello")

	// 指标端点
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `path="/v1/chat/sessions/:id/messages"`)

	count, err := testutil.GatherAndCount(reg, "weatherbot_http_requests_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 2)
}

func TestServerHandler_Health(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	for _, path := range []string{"/health", "/healthz", "/ready"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestServerHandler_AuthRequired(t *testing.T) {
	handler, _ := newTestHandler(t, func(cfg *config.Config) {
		cfg.Auth.APIKeys = []string{"secret-key"}
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/chat/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	r := httptest.NewRequest(http.MethodPost, "/v1/chat/sessions", nil)
	r.Header.Set("X-API-Key", "secret-key")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerHandler_UnknownSession(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/chat/sessions/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
