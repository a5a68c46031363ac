package providers

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/weatherbot/llm"
	"github.com/BaSui01/weatherbot/llm/retry"
	"github.com/BaSui01/weatherbot/types"
)

type flakyProvider struct {
	calls  atomic.Int32
	failN  int32
	status int
}

func (p *flakyProvider) Name() string { return "flaky" }

func (p *flakyProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *flakyProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.calls.Add(1) <= p.failN {
		return nil, MapHTTPError(p.status, "try later", "flaky")
	}
	return &llm.ChatResponse{Model: req.Model, Choices: []llm.ChatChoice{{Message: types.NewAssistantMessage("ok")}}}, nil
}

func fastPolicy(retries int) retry.Policy {
	p := DefaultRetryPolicy()
	p.MaxRetries = retries
	p.InitialDelay = time.Millisecond
	p.MaxDelay = 2 * time.Millisecond
	p.Jitter = false
	return p
}

func TestRetryableProvider(t *testing.T) {
	tests := []struct {
		name      string
		failN     int32
		status    int
		retries   int
		wantErr   bool
		wantCalls int32
	}{
		{name: "recovers after 503", failN: 2, status: http.StatusServiceUnavailable, retries: 2, wantCalls: 3},
		{name: "exhausted", failN: 5, status: http.StatusTooManyRequests, retries: 2, wantErr: true, wantCalls: 3},
		{name: "bad request not retried", failN: 1, status: http.StatusBadRequest, retries: 2, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &flakyProvider{failN: tt.failN, status: tt.status}
			p := NewRetryableProvider(inner, fastPolicy(tt.retries), nil)

			resp, err := p.Completion(context.Background(), &llm.ChatRequest{Model: "m"})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "ok", resp.Choices[0].Message.Content)
			}
			assert.Equal(t, tt.wantCalls, inner.calls.Load())
			assert.Equal(t, "flaky", p.Name())
		})
	}
}
