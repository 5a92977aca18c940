// Package api 定义 VoiceFlow HTTP API 的共享契约：请求头名称、
// 响应结构与 Outcome 取值。
//
// # API 概览
//
//   - POST /audio        multipart 上传音频，返回转写、回复文本与 TTS 地址
//   - GET  /audio/stats  当前 API Key 对应租户的会话用量汇总
//   - GET  /healthz      存活探针
//   - GET  /readyz       就绪探针（检查会话存储）
//   - GET  /version      版本信息
//   - GET  /metrics      Prometheus 指标
//
// # 认证
//
// /audio 与 /audio/stats 通过 X-API-Key 请求头认证：
//
//	X-API-Key: your-api-key
//
// 原始 Key 只用于派生租户 ID（sha256 前 12 位），不会出现在响应、日志或存储中。
//
// # Outcome 头
//
// 每个响应都带有 X-Outcome（ok、success、error）。错误响应额外带有
// X-Outcome-Detail，取值形如 auth.unauthorized、audio.bad_request、
// llm.tier_forbidden、rate_limit、internal_error。
package api
