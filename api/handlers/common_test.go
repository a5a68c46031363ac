package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/weatherbot/internal/ctxkeys"
	"github.com/BaSui01/weatherbot/types"
)

// =============================================================================
// 🧪 响应辅助函数测试
// =============================================================================

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteSuccess(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-1"))
	w := httptest.NewRecorder()

	WriteSuccess(w, r, http.StatusCreated, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, map[string]any{"id": "abc"}, resp.Data)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantError string
		wantMsg   string
	}{
		{name: "explicit status", err: types.NewNotFoundError("session not found"), wantCode: http.StatusNotFound, wantError: "NOT_FOUND", wantMsg: "session not found"},
		{name: "mapped from code", err: types.NewError(types.ErrRateLimited, "slow down"), wantCode: http.StatusTooManyRequests, wantError: "RATE_LIMITED", wantMsg: "slow down"},
		{name: "upstream", err: types.NewUpstreamError("azure", "completion failed", errors.New("eof")), wantCode: http.StatusBadGateway, wantError: "UPSTREAM_ERROR", wantMsg: "completion failed"},
		{name: "untyped hidden", err: errors.New("db password leaked"), wantCode: http.StatusInternalServerError, wantError: "INTERNAL_ERROR", wantMsg: "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, zap.NewNop())

			assert.Equal(t, tt.wantCode, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantError, resp.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
		})
	}
}

func TestWriteError_LogLevel(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteError(httptest.NewRecorder(), r, types.NewInvalidRequestError("bad"), logger)
	WriteError(httptest.NewRecorder(), r, errors.New("boom"), logger)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := map[types.ErrorCode]int{
		types.ErrInvalidRequest:     http.StatusBadRequest,
		types.ErrUnauthorized:       http.StatusUnauthorized,
		types.ErrForbidden:          http.StatusForbidden,
		types.ErrNotFound:           http.StatusNotFound,
		types.ErrContextTooLong:     http.StatusRequestEntityTooLarge,
		types.ErrUpstreamTimeout:    http.StatusGatewayTimeout,
		types.ErrServiceUnavailable: http.StatusServiceUnavailable,
		types.ErrInternalError:      http.StatusInternalServerError,
		"SOMETHING_NEW":             http.StatusInternalServerError,
	}
	for code, want := range tests {
		t.Run(string(code), func(t *testing.T) {
			assert.Equal(t, want, mapErrorCodeToHTTPStatus(code))
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Content string `json:"content"`
	}

	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantStatus int
	}{
		{name: "valid", body: `{"content":"hi"}`},
		{name: "empty", body: "", wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"content":"hi","extra":1}`, wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `{"content":`, wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "too large", body: `{"content":"` + strings.Repeat("a", maxBodyBytes) + `"}`, wantErr: true, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := DecodeJSONBody(httptest.NewRecorder(), r, &p)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "hi", p.Content)
				return
			}
			apiErr, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, apiErr.HTTPStatus)
		})
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)
	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusTeapot, rw.StatusCode)
	assert.Equal(t, int64(5), rw.BytesWritten)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
