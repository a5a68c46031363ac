// Package session 定义助手的对话上下文：消息历史、已解析的地理位置、
// 天气类别与本轮访问过的 Agent。编排器和各子 Agent 通过它共享状态。
package session
