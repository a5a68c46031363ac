// Package convlog 将生成的对话写入日志：
// JSON 日志以 ~~~NEW_CONVERSATION~~~ 分隔，每条消息带 messageId 与 harness 上下文；
// 精简日志是 xlsx 表格，每条消息一行，便于人工审阅。
package convlog
