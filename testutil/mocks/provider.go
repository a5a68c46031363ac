// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按顺序脚本化响应、按提示词路由与错误注入。
package mocks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/weatherbot/llm"
	"github.com/BaSui01/weatherbot/types"
)

// ErrScriptExhausted 脚本化响应用尽后返回
var ErrScriptExhausted = errors.New("mock provider: scripted responses exhausted")

// MockProvider 是 LLM Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	response  string
	script    []string
	routes    []route
	err       error
	failAfter int

	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	calls []MockProviderCall
}

type route struct {
	contains string
	reply    string
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{response: "Mock response"}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithScript 按调用顺序依次返回 replies，用尽后返回 ErrScriptExhausted
func (m *MockProvider) WithScript(replies ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, replies...)
	return m
}

// WithRoute 当第一条消息包含 contains 时返回 reply，优先于脚本与固定响应
func (m *MockProvider) WithRoute(contains, reply string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, route{contains: contains, reply: reply})
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// --- Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string { return "mock" }

// HealthCheck 执行健康检查
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true, Latency: 10 * time.Millisecond}, nil
}

// Completion 生成响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record := func(resp *llm.ChatResponse, err error) (*llm.ChatResponse, error) {
		m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
		return resp, err
	}

	if m.failAfter > 0 && len(m.calls) >= m.failAfter {
		return record(nil, errors.New("mock provider: configured to fail after N calls"))
	}
	if m.err != nil {
		return record(nil, m.err)
	}
	if m.completionFunc != nil {
		return record(m.completionFunc(ctx, req))
	}

	if reply, ok := m.routeFor(req); ok {
		return record(TextResponse(req.Model, reply), nil)
	}
	if len(m.script) > 0 {
		reply := m.script[0]
		m.script = m.script[1:]
		return record(TextResponse(req.Model, reply), nil)
	}
	if m.script != nil {
		return record(nil, ErrScriptExhausted)
	}
	return record(TextResponse(req.Model, m.response), nil)
}

func (m *MockProvider) routeFor(req *llm.ChatRequest) (string, bool) {
	if len(req.Messages) == 0 {
		return "", false
	}
	first := req.Messages[0].Content
	for _, r := range m.routes {
		if strings.Contains(first, r.contains) {
			return r.reply, true
		}
	}
	return "", false
}

// --- 调用记录 ---

// Calls 返回全部调用记录
func (m *MockProvider) Calls() []MockProviderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastRequest 返回最后一次请求，没有调用时为 nil
func (m *MockProvider) LastRequest() *llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1].Request
}

// Reset 清空调用记录
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// TextResponse 构造只有一个文本选项的响应
func TextResponse(model, content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "mock-response-id",
		Provider: "mock",
		Model:    model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      types.NewAssistantMessage(content),
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
		CreatedAt: time.Now(),
	}
}
