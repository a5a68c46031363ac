package api

import (
	"time"

	"github.com/BaSui01/weatherbot/types"
)

// =============================================================================
// 聊天会话类型
// =============================================================================

// CreateSessionResponse 新建会话的响应，Reply 为开场问候语
type CreateSessionResponse struct {
	ID    string `json:"id"`
	Reply string `json:"reply"`
}

// MessageRequest 用户发送的一条消息
type MessageRequest struct {
	Content string `json:"content"`
}

// Location 已解析的用户位置
type Location struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Description string  `json:"description,omitempty"`
}

// MessageResponse 助手回复以及当前提取到的上下文
type MessageResponse struct {
	Reply           string    `json:"reply"`
	Location        *Location `json:"location,omitempty"`
	WeatherCategory string    `json:"weather_category,omitempty"`
	VisitedAgents   []string  `json:"visited_agents,omitempty"`
}

// Session 会话详情
type Session struct {
	ID              string          `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Messages        []types.Message `json:"messages"`
	Location        *Location       `json:"location,omitempty"`
	WeatherCategory string          `json:"weather_category,omitempty"`
}
