/*
Package handlers 实现 weatherbot 的 HTTP 处理器。

# 核心类型

  - ChatHandler：聊天会话接口，创建、查询、删除会话与发送消息。
    每条消息在会话副本上调用编排器，成功后才提交。
  - SessionStore：互斥锁保护的内存会话表，带数量上限与空闲回收。
  - HealthHandler：/health、/healthz 存活探针与 /ready 就绪探针，
    就绪检查通过 RegisterCheck 注册（数据库、Redis）。
  - Response / ErrorInfo：统一 JSON 响应结构。
  - ResponseWriter：捕获状态码与响应字节数，供中间件使用。

错误统一经 WriteError 输出：*types.Error 按错误码映射 HTTP 状态，
其余错误按 500 处理且不向客户端暴露细节。
*/
package handlers
