package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/weatherbot/agent/session"
	"github.com/BaSui01/weatherbot/api"
	"github.com/BaSui01/weatherbot/internal/ctxkeys"
	"github.com/BaSui01/weatherbot/types"
)

// maxMessageRunes 单条用户消息长度上限
const maxMessageRunes = 4000

// Replier 生成一条助手回复；*orchestrator.Orchestrator 满足该接口
type Replier interface {
	Reply(ctx context.Context, userMessage string, sess *session.Context) (string, error)
}

// =============================================================================
// 💬 聊天会话 Handler
// =============================================================================

// ChatHandler 聊天会话处理器
type ChatHandler struct {
	replier  Replier
	store    *SessionStore
	greeting string
	logger   *zap.Logger
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(replier Replier, store *SessionStore, greeting string, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		replier:  replier,
		store:    store,
		greeting: greeting,
		logger:   logger.With(zap.String("component", "chat_api")),
	}
}

// Register 挂载会话路由
func (h *ChatHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/chat/sessions", h.HandleCreate)
	mux.HandleFunc("GET /v1/chat/sessions/{id}", h.HandleGet)
	mux.HandleFunc("DELETE /v1/chat/sessions/{id}", h.HandleDelete)
	mux.HandleFunc("POST /v1/chat/sessions/{id}/messages", h.HandleMessage)
}

// HandleCreate POST /v1/chat/sessions
func (h *ChatHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	cs, err := h.store.Create(h.greeting)
	if err != nil {
		if errors.Is(err, ErrSessionLimit) {
			err = types.NewError(types.ErrServiceUnavailable, "too many active sessions").
				WithHTTPStatus(http.StatusServiceUnavailable).WithRetryable(true)
		}
		WriteError(w, r, err, h.logger)
		return
	}

	h.logger.Info("session created", zap.String("session_id", cs.ID), zap.String("request_id", requestID(r)))
	WriteSuccess(w, r, http.StatusCreated, api.CreateSessionResponse{ID: cs.ID, Reply: h.greeting})
}

// HandleGet GET /v1/chat/sessions/{id}
func (h *ChatHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	cs, ok := h.lookup(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, r, http.StatusOK, cs.View())
}

// HandleDelete DELETE /v1/chat/sessions/{id}
func (h *ChatHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.store.Delete(id) {
		WriteError(w, r, types.NewNotFoundError("session not found"), h.logger)
		return
	}
	h.logger.Info("session deleted", zap.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// HandleMessage POST /v1/chat/sessions/{id}/messages
func (h *ChatHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	cs, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req api.MessageRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		WriteError(w, r, types.NewInvalidRequestError("content is required"), h.logger)
		return
	}
	if len([]rune(content)) > maxMessageRunes {
		WriteError(w, r, types.NewInvalidRequestError("content is too long"), h.logger)
		return
	}

	ctx := ctxkeys.WithSessionID(r.Context(), cs.ID)
	start := time.Now()
	resp, err := cs.Reply(ctx, h.replier, content, start)
	if err != nil {
		if _, typed := types.AsError(err); !typed {
			err = types.NewUpstreamError("assistant", "assistant failed to reply", err)
		}
		WriteError(w, r, err, h.logger)
		return
	}

	h.logger.Info("reply sent",
		zap.String("session_id", cs.ID),
		zap.String("request_id", requestID(r)),
		zap.Strings("visited_agents", resp.VisitedAgents),
		zap.Duration("duration", time.Since(start)),
	)
	WriteSuccess(w, r, http.StatusOK, resp)
}

func (h *ChatHandler) lookup(w http.ResponseWriter, r *http.Request) (*ChatSession, bool) {
	cs, ok := h.store.Get(r.PathValue("id"))
	if !ok {
		WriteError(w, r, types.NewNotFoundError("session not found"), h.logger)
		return nil, false
	}
	return cs, true
}
