package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationID(t *testing.T) {
	t.Parallel()

	_, ok := ConversationID(context.Background())
	assert.False(t, ok)

	_, ok = ConversationID(WithConversationID(context.Background(), ""))
	assert.False(t, ok, "空 ID 视为未设置")

	id, ok := ConversationID(WithConversationID(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
}
