package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/weatherbot/agent/session"
	"github.com/BaSui01/weatherbot/api"
	"github.com/BaSui01/weatherbot/types"
)

// ErrSessionLimit 会话数已达上限
var ErrSessionLimit = errors.New("session limit reached")

// =============================================================================
// 🗂️ 内存会话存储
// =============================================================================

// StoreConfig 会话存储配置
type StoreConfig struct {
	MaxSessions int
	IdleTTL     time.Duration
}

// DefaultStoreConfig 返回默认会话存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxSessions: 1000,
		IdleTTL:     30 * time.Minute,
	}
}

// ChatSession 一个聊天会话；mu 保证同一会话的回复严格串行
type ChatSession struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	updatedAt time.Time
	sess      *session.Context
}

// SessionStore 以互斥锁保护的内存会话表
type SessionStore struct {
	config StoreConfig
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*ChatSession
}

// NewSessionStore 创建会话存储
func NewSessionStore(cfg StoreConfig) *SessionStore {
	def := DefaultStoreConfig()
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	return &SessionStore{
		config:   cfg,
		now:      time.Now,
		sessions: make(map[string]*ChatSession),
	}
}

// Create 新建会话，历史以 greeting 开头
func (s *SessionStore) Create(greeting string) (*ChatSession, error) {
	now := s.now()
	sess := session.New()
	sess.AddMessage(types.RoleAssistant, greeting)
	cs := &ChatSession{
		ID:        uuid.NewString(),
		CreatedAt: now,
		updatedAt: now,
		sess:      sess,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) >= s.config.MaxSessions {
		s.sweepLocked(now)
		if len(s.sessions) >= s.config.MaxSessions {
			return nil, ErrSessionLimit
		}
	}
	s.sessions[cs.ID] = cs
	return cs, nil
}

// Get 按 ID 查找会话
func (s *SessionStore) Get(id string) (*ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.sessions[id]
	return cs, ok
}

// Delete 删除会话，返回是否存在
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len 返回会话数
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep 删除空闲超过 IdleTTL 的会话，返回删除数量
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

func (s *SessionStore) sweepLocked(now time.Time) int {
	removed := 0
	for id, cs := range s.sessions {
		if now.Sub(cs.lastActive(now)) > s.config.IdleTTL {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper 定期清理空闲会话，直到 ctx 结束
func (s *SessionStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// =============================================================================
// 💬 会话操作
// =============================================================================

// Reply 在会话副本上生成回复，成功后才提交，失败时会话保持不变
func (cs *ChatSession) Reply(ctx context.Context, r Replier, content string, now time.Time) (api.MessageResponse, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	work := session.FromMessages(cs.sess.Messages())
	work.Location = cs.sess.Location
	work.LocationDescription = cs.sess.LocationDescription
	work.WeatherCategory = cs.sess.WeatherCategory

	reply, err := r.Reply(ctx, content, work)
	if err != nil {
		return api.MessageResponse{}, err
	}
	cs.sess = work
	cs.updatedAt = now

	resp := api.MessageResponse{
		Reply:         reply,
		Location:      locationOf(work),
		VisitedAgents: append([]string(nil), work.VisitedAgents...),
	}
	if work.WeatherCategory != nil {
		resp.WeatherCategory = string(*work.WeatherCategory)
	}
	return resp, nil
}

// View 返回会话快照
func (cs *ChatSession) View() api.Session {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	v := api.Session{
		ID:        cs.ID,
		CreatedAt: cs.CreatedAt,
		UpdatedAt: cs.updatedAt,
		Messages:  cs.sess.Messages(),
		Location:  locationOf(cs.sess),
	}
	if cs.sess.WeatherCategory != nil {
		v.WeatherCategory = string(*cs.sess.WeatherCategory)
	}
	return v
}

// lastActive 正在生成回复的会话持有 mu，视为活跃
func (cs *ChatSession) lastActive(now time.Time) time.Time {
	if !cs.mu.TryLock() {
		return now
	}
	defer cs.mu.Unlock()
	return cs.updatedAt
}

func locationOf(sess *session.Context) *api.Location {
	if sess.Location == nil {
		return nil
	}
	return &api.Location{
		Lat:         sess.Location.Lat,
		Lon:         sess.Location.Lon,
		Description: sess.LocationDescription,
	}
}
