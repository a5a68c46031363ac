// Package tokenizer 提供 Token 计数接口，
// 优先使用 tiktoken 精确计数，BPE 数据不可用时回退到字符估算器，
// 用于助手对话历史的 Token 预算裁剪。
package tokenizer
