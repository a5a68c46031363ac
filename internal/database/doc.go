// Package database 为实验追踪存储提供基于 GORM 的连接池：按配置选择
// sqlite（纯 Go 或 cgo）、postgres、mysql 方言，支持健康检查与事务重试。
package database
