/*
包 server 管理 weatherbot serve 的 HTTP 服务器生命周期。

Manager 封装 net/http.Server：Start 在后台监听，Run 阻塞到 context
取消或服务异常退出，随后在 ShutdownTimeout 内优雅关闭。证书与私钥
同时配置时使用 tlsutil 的服务端 TLS 配置启动 HTTPS。
*/
package server
