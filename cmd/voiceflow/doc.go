// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 VoiceFlow 服务端程序入口。

# 概述

cmd/voiceflow 是 VoiceFlow 的可执行入口，提供 HTTP API 服务、健康检查、
版本查询与会话维护等子命令。配置来自 YAML 文件与 VOICEFLOW_ 前缀的
环境变量，日志使用 zap，指标由 Prometheus 采集。

# 核心类型

  - Server: 组装会话存储、限流、供应商链与处理器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware: HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、version、health（探测 /healthz）、
    sessions purge（清理过期会话，--all 清空全部）
  - 中间件链（由外到内）：CorrelationID、OTelTracing、RequestLogger、
    MetricsMiddleware、Recovery、SecurityHeaders、CORS、DefaultOutcome、
    RateLimit（按派生租户 ID 或客户端 IP）
  - 路由：POST /audio、GET /audio/stats、/healthz、/readyz、/version、/metrics
  - Metrics 服务器：metrics_port 与 http_port 不同时独立暴露 /metrics
  - 优雅关闭：信号监听 → 并行关闭 HTTP 与 Metrics → 停止清理任务 → 关闭 Redis、数据库与遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
