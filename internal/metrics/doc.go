// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、供应商、
流水线、会话存储与数据库五个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制。所有指标按 namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 路由指标：errors_total、llm_tier_denied_total、rate_limit_hits_total。
  - 供应商指标：按 stage/provider 的调用计数与耗时、降级计数、LLM token 用量。
  - 流水线指标：各阶段耗时直方图与结果计数。
  - 会话存储指标：读写计数、清理计数、当前会话数 Gauge、持久化失败计数。
  - 数据库指标：连接池 Gauge 与查询耗时。

Collector 同时满足 llm/fallback.Recorder 与 session.Recorder 接口。
*/
package metrics
