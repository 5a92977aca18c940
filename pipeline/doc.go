// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 pipeline 编排一次音频请求：校验 → 语音转文本 → 文本生成 →
语音合成 → 会话持久化 → 组装响应。

# 概述

Orchestrator.Process 将一个 RequestContext 转换为且仅转换为
Response 或 PipelineError 之一，从不向调用方抛出 panic。

校验按固定顺序短路：unauthorized → bad_request →
unsupported_media_type → tier_invalid → tier_forbidden。
所有校验都在调用任何供应商之前完成。

各阶段的供应商错误在调用点转换为类型化结果：超时映射为
provider_timeout，其余映射为 stt_error / llm_error / tts_error。
阶段之间严格串行，编排器本身不重试；重试与降级由包装供应商的
fallback 装饰器负责。

# 状态机

每个请求依次经过 Validating → Transcribing → Generating →
Synthesizing → Persisting → Responding，任一阶段可直接进入
Failed(code)。每次状态切换都会记录为 OpenTelemetry span 事件
以及一次阶段耗时直方图观测。
*/
package pipeline
