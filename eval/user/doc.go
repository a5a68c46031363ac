// Package user 实现模拟用户：CustomerChat 让 LLM 扮演客户，
// StandardGenerator 与 RandomGenerator 提供客户画像。
package user
