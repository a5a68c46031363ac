// Package factory 根据 config.LLMConfig 创建补全 Provider（azure / openai），
// 并按固定顺序叠加重试、补全缓存与观测中间件。
package factory
