// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 VoiceFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现音频处理、租户统计与健康检查端点，以及统一的
错误响应与 Outcome 头处理。所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - AudioHandler: POST /audio，解析 multipart 上传并调用编排器
  - StatsHandler: GET /audio/stats，按 API Key 派生的租户汇总用量
  - HealthHandler: /healthz、/readyz、/version
  - ResponseWriter: 包装 http.ResponseWriter 以捕获状态码与字节数
  - HealthCheck: 可插拔就绪检查接口（PingCheck）

# 错误响应

WriteError 输出 {"detail", "code"} 响应体，并设置 X-Outcome: error 与
X-Outcome-Detail（由 OutcomeDetail 按错误码映射，如 audio.bad_request、
llm.tier_forbidden）。等级错误的 detail 固定为 llm.tier_forbidden /
llm.tier_invalid，便于客户端稳定匹配。
*/
package handlers
