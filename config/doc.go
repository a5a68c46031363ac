// Package config 提供 weatherbot 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（WEATHERBOT_ 前缀）的顺序叠加，
// 加载完成后统一校验。覆盖 HTTP 服务、补全服务、Azure Maps、补全缓存、
// 追踪数据库、评测参数、日志、遥测与 API 鉴权。
package config
