// Package scenario 读取场景/评分标准表格，按场景分组生成对话，
// 并把每条对话与其评分标准配对成待评估记录。
//
// 不同对话之间可以并发生成（errgroup + SetLimit），单个对话内部始终串行。
package scenario
