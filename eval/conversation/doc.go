// Package conversation 是评估框架的核心：在助手 Harness 与模拟用户之间
// 逐轮生成对话，并在每轮之后检查中断条件（测试用例 key、@done@ 结束标记、
// 重复回复），直到达到最大轮数。
//
// 每条由 GenerateTurn 产生的助手消息都附带一个 HarnessSnapshot，记录助手
// 生成该回复时看到的历史与状态；快照生成后不再修改。
//
// 单个对话严格串行，Generator 与 Conversation 都不在 goroutine 之间共享。
package conversation
