/*
Package types 提供 weatherbot 各层共享的基础类型。

# 概述

types 是最底层的公共包，不依赖任何内部包。agent、eval、llm、api 等上层
模块都从这里取消息、角色与错误码定义，避免循环依赖。

# 核心类型

  - Role / Message：对话消息（system、user、assistant）
  - Error / ErrorCode：结构化错误，含 HTTP 状态码与 Retryable 标记
  - Context 传播：WithTraceID / WithConversationID / WithRequestID
*/
package types
