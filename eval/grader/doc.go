// Package grader 用 LLM 评审对话：渲染评分模板、解析评审输出，
// 并提供内环评估使用的打分函数。
package grader
