// Package tlsutil 为出站 HTTP 客户端（LLM、Azure Maps）与 HTTP 服务端
// 提供统一的安全加固 TLS 配置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
