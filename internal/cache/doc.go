// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的连接管理，供分布式限流使用。

# 概述

Manager 封装 go-redis 客户端，负责连接初始化、后台健康检查与
优雅关闭，并提供固定窗口计数原语 IncrWindow。

# 核心类型

  - Manager：持有 Redis 客户端与连接池配置。
  - Config：地址、密码、连接池大小与健康检查间隔，
    可由 ConfigFromRedis 从应用配置构造。

# 主要能力

  - IncrWindow：INCR + PEXPIRE 实现的固定窗口计数器，返回计数与剩余时间。
  - 健康检查：后台定时 Ping，异常时通过 zap 日志告警。
  - Ping：供 /readyz 就绪检查使用。
*/
package cache
