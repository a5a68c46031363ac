/*
包 cache 管理 Redis 连接：补全缓存的二级存储与 /ready 就绪检查共用同一个客户端。

# 核心类型

  - Manager：持有 go-redis 客户端，建立时 Ping 确认可达，
    后台定时健康检查并上报连接池指标，Close 停止检查并释放连接。
  - Config：地址、密码、库号、连接池与健康检查间隔，
    ConfigFrom 从 config.CacheConfig 转换。
*/
package cache
