/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、补全辅助函数与
两级补全缓存。

# Provider 抽象

核心接口是 [Provider]，包含补全、健康检查与名称。天气助手的各个 agent、
模拟用户和 LLM 评分器都只依赖这个接口。

# 核心类型

  - [ChatRequest] / [ChatResponse]：聊天请求与响应
  - [HealthStatus]：健康检查状态
  - [CachingProvider]：对温度为 0 的确定性请求做本地 LRU + Redis 缓存

# 相关子包

- llm/providers：OpenAI 兼容与 Azure OpenAI 适配实现。
- llm/retry：重试与退避策略。
- llm/tokenizer：基于 tiktoken 的 token 计数。
*/
package llm
