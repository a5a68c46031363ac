package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("azure-maps")

	assert.Equal(t, ErrUpstreamError, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "upstream failed")
	assert.Contains(t, err.Error(), "root")
}

func TestAsError_ThroughWrapping(t *testing.T) {
	t.Parallel()

	base := NewNotFoundError("session not found")
	wrapped := fmt.Errorf("lookup: %w", base)

	got, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, got.HTTPStatus)
	assert.True(t, IsErrorCode(wrapped, ErrNotFound))
	assert.False(t, IsRetryable(wrapped))

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestNewUpstreamError(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: timeout")
	err := NewUpstreamError("openai", "completion failed", cause)
	assert.Equal(t, "openai", err.Provider)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus)
	assert.True(t, err.Retryable)
	assert.ErrorIs(t, err, cause)
}

func TestRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role  Role
		flip  Role
		valid bool
	}{
		{RoleUser, RoleAssistant, true},
		{RoleAssistant, RoleUser, true},
		{RoleSystem, RoleSystem, true},
		{Role("tool"), Role("tool"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.flip, tt.role.Flip())
			assert.Equal(t, tt.valid, tt.role.Valid())
		})
	}
}

func TestFlattenMessages(t *testing.T) {
	t.Parallel()

	msgs := []Message{
		NewAssistantMessage("Hello! How can I help you?"),
		NewUserMessage("weather in Seattle"),
	}
	assert.Equal(t, "assistant: Hello! How can I help you?\nuser: weather in Seattle", FlattenMessages(msgs))
	assert.Equal(t, "", FlattenMessages(nil))

	cloned := CloneMessages(msgs)
	cloned[0].Content = "changed"
	assert.Equal(t, "Hello! How can I help you?", msgs[0].Content)
	assert.Nil(t, CloneMessages(nil))
}
