// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

// Package telemetry 初始化 OpenTelemetry SDK，为流水线 span 与 HTTP
// 追踪中间件提供全局 TracerProvider 和 MeterProvider。
// 未启用时使用 noop 实现，不连接任何外部服务。
package telemetry
