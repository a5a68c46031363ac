/*
# 概述

包 providers 提供 OpenAI 兼容协议的公共适配能力：请求/响应结构、错误映射、
鉴权 header 以及 Provider 配置。具体的 HTTP 实现在 openaicompat 子包。

# 核心函数

  - MapHTTPError：将 HTTP 状态码映射为语义化的 types.Error（含 Retryable 标记）
  - ConvertMessagesToOpenAI / ToLLMChatResponse：消息格式转换
  - ChooseModel：按优先级选择模型（请求 > 默认 > 兜底）
  - BearerTokenHeaders / AzureAPIKeyHeaders：两种鉴权方式
*/
package providers
