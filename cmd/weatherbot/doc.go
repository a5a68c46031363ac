/*
Package main 提供 weatherbot 的命令行入口。

# 概述

cmd/weatherbot 组装天气助手（编排器、位置与天气子代理）与评测框架，
提供交互式聊天、HTTP 服务、对话生成工具以及端到端和内环评测等子命令。
配置来自 YAML 文件与 WEATHERBOT_ 前缀的环境变量，启动时会先读取 .env。

# 子命令

  - chat：终端中与助手对话，空行退出
  - serve：启动 HTTP 会话 API，暴露 /health、/ready 与 /metrics
  - generate：交互式生成模拟客户对话并写入日志
  - evaluate：按场景 CSV 生成对话并评分（端到端实验）
  - agent-test：用测试用例评测单个子代理（内环实验）
  - extract：从 JSON 对话日志中抽取测试用例
  - version：打印构建信息

# 中间件链

Recovery → RequestID → SecurityHeaders → OTelTracing → Metrics →
RequestLogger → CORS → RateLimiter（基于 IP）→ Auth（X-API-Key 或 JWT）。
*/
package main
