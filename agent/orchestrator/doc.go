// Package orchestrator 驱动助手的一次回复：按顺序调用子 Agent
// （先 location 后 weather），第一个给出非空回复的 Agent 胜出，
// 并把用户消息与回复写回会话上下文。
package orchestrator
