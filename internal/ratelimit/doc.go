// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 ratelimit 提供按租户的请求限流。

# 核心类型

  - Limiter：限流接口，Allow 返回 Decision（是否放行、剩余次数、重试等待）。
  - MemoryLimiter：进程内令牌桶（golang.org/x/time/rate），每个键一个桶，
    容量为窗口内最大请求数，空闲桶由后台协程清理。
  - RedisLimiter：基于 internal/cache 固定窗口计数器，多实例共享配额。

限流键应为派生后的租户 ID，不得使用原始凭证。
*/
package ratelimit
