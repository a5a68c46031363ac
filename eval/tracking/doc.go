// Package tracking 记录评估实验：每次运行的指标、标签与 JSON 产物。
// GormSink 写入数据库，FileSink 写入本地目录，Nop 丢弃一切。
package tracking
