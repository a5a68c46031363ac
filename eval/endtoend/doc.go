// Package endtoend 实现端到端评测：按场景生成对话，用 LLM 评审逐条打分，
// 汇总 avg_accuracy、场景与类别均值，并把产物写入输出目录、实验追踪与对话日志。
//
// 评分有两种模式：
//   - single：每条标准单独调用一次评审
//   - multi：同一对话的全部标准编号后一次评审，按位置对应
package endtoend
