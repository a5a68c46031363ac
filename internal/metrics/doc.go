/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、LLM、助手 Agent、对话生成、评分、缓存与数据库七个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
注册机制，默认注册到全局 Registry，测试中可通过 NewCollectorWith
注入独立 Registry。所有指标按 namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - LLM 指标：请求总数、请求耗时、Token 用量（prompt/completion），按 provider/model 分组。
  - Agent 指标：location / weather 子 Agent 调用次数与耗时。
  - 对话指标：回合结果计数、结束原因计数、单次对话耗时。
  - 评分指标：评分次数（按 single/multi 模式与解析状态）与得分分布。
  - 缓存与数据库指标：命中/未命中计数、连接池 Gauge。
*/
package metrics
