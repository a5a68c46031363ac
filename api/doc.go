// Package api 定义 weatherbot HTTP 接口的请求与响应结构。
//
// 路由：
//
//	GET    /health, /healthz        存活探针
//	GET    /ready                   就绪探针（数据库、Redis）
//	GET    /metrics                 Prometheus 指标
//	POST   /v1/chat/sessions        新建会话，返回开场问候
//	GET    /v1/chat/sessions/{id}   会话记录
//	DELETE /v1/chat/sessions/{id}   删除会话
//	POST   /v1/chat/sessions/{id}/messages  发送消息
//
// 配置了 API Key 时使用 X-API-Key 请求头鉴权，配置了 JWT 密钥时使用
// Authorization: Bearer，两者都配置时任一通过即可。
package api
