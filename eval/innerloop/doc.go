// Package innerloop 对单个子代理做隔离评测（inner loop）。
//
// 测试用例来自 JSON 文件，或用 Extract 从对话日志中按对话 id 与消息 id 抽取。
// 每个 Agent 包装一个子代理：Predict 运行它，Measure 打分。提取器用精确匹配，
// 助手在用例带有评审标准时交给 LLM 评审。Run 汇总各指标均值、按来源统计通过率，
// 并写入实验追踪。
package innerloop
