// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 业务路由指标
	errorsTotal        *prometheus.CounterVec
	tierDeniedTotal    *prometheus.CounterVec
	rateLimitHitsTotal *prometheus.CounterVec

	// 供应商指标
	providerRequestsTotal   *prometheus.CounterVec
	providerRequestDuration *prometheus.HistogramVec
	providerFallbacksTotal  *prometheus.CounterVec
	providerBreakerState    *prometheus.GaugeVec
	llmTokensUsed           *prometheus.CounterVec

	// 流水线指标
	pipelineStageDuration *prometheus.HistogramVec
	pipelineOutcomesTotal *prometheus.CounterVec

	// 会话存储指标
	memWritesTotal  prometheus.Counter
	memReadsTotal   prometheus.Counter
	sessionsPurged  prometheus.Counter
	sessionsCurrent prometheus.Gauge
	storageErrors   *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 业务路由指标
	c.errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of requests answered with an error outcome",
		},
		[]string{"route"},
	)

	c.tierDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tier_denied_total",
			Help:      "Total number of requests rejected because the requested tier exceeds the authorized one",
		},
		[]string{"route", "requested_tier", "authorized_tier"},
	)

	c.rateLimitHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
		[]string{"route"},
	)

	// 供应商指标
	c.providerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of provider calls per pipeline stage",
		},
		[]string{"stage", "provider", "status"},
	)

	c.providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Provider call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage", "provider"},
	)

	c.providerFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Total number of calls served by a secondary provider",
		},
		[]string{"stage", "primary", "secondary"},
	)

	c.providerBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_breaker_state",
			Help:      "Primary provider circuit breaker state (0=closed, 1=half_open, 2=open)",
		},
		[]string{"stage", "provider"},
	)

	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	// 流水线指标
	c.pipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	c.pipelineOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_outcomes_total",
			Help:      "Total number of pipeline runs by outcome code",
		},
		[]string{"outcome"},
	)

	// 会话存储指标
	c.memWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mem_writes_total",
		Help:      "Total number of session store writes",
	})

	c.memReadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mem_reads_total",
		Help:      "Total number of session store reads",
	})

	c.sessionsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_sessions_purged_total",
		Help:      "Total number of sessions removed after their retention window",
	})

	c.sessionsCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audio_sessions_current",
		Help:      "Number of live sessions held by the store",
	})

	c.storageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Total number of session persistence failures",
		},
		[]string{"operation"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordRouteError 记录以错误结束的业务请求
func (c *Collector) RecordRouteError(route string) {
	c.errorsTotal.WithLabelValues(route).Inc()
}

// RecordTierDenied 记录等级越权拒绝
func (c *Collector) RecordTierDenied(route, requestedTier, authorizedTier string) {
	c.tierDeniedTotal.WithLabelValues(route, requestedTier, authorizedTier).Inc()
}

// RecordRateLimitHit 记录限流命中
func (c *Collector) RecordRateLimitHit(route string) {
	c.rateLimitHitsTotal.WithLabelValues(route).Inc()
}

// =============================================================================
// 🤖 供应商指标记录
// =============================================================================

// RecordProviderRequest 记录一次供应商调用（stage: stt / llm / tts）
func (c *Collector) RecordProviderRequest(stage, provider, status string, duration time.Duration) {
	c.providerRequestsTotal.WithLabelValues(stage, provider, status).Inc()
	c.providerRequestDuration.WithLabelValues(stage, provider).Observe(duration.Seconds())
}

// RecordProviderFallback 记录一次降级到备用供应商
func (c *Collector) RecordProviderFallback(stage, primary, secondary string) {
	c.providerFallbacksTotal.WithLabelValues(stage, primary, secondary).Inc()
}

// SetProviderBreakerState 记录主供应商熔断器状态
func (c *Collector) SetProviderBreakerState(stage, provider string, level float64) {
	c.providerBreakerState.WithLabelValues(stage, provider).Set(level)
}

// RecordLLMTokens 记录 LLM token 用量
func (c *Collector) RecordLLMTokens(provider, model string, promptTokens, completionTokens int) {
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// =============================================================================
// 🔀 流水线指标记录
// =============================================================================

// RecordPipelineStage 记录流水线阶段耗时
func (c *Collector) RecordPipelineStage(stage string, duration time.Duration) {
	c.pipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordPipelineOutcome 记录流水线结果（success 或错误码）
func (c *Collector) RecordPipelineOutcome(outcome string) {
	c.pipelineOutcomesTotal.WithLabelValues(outcome).Inc()
}

// =============================================================================
// 💾 会话存储指标记录
// =============================================================================

// RecordSessionWrite 记录一次会话写入
func (c *Collector) RecordSessionWrite() {
	c.memWritesTotal.Inc()
}

// RecordSessionRead 记录一次会话读取
func (c *Collector) RecordSessionRead() {
	c.memReadsTotal.Inc()
}

// RecordSessionsPurged 记录清理的过期会话数
func (c *Collector) RecordSessionsPurged(n int) {
	if n <= 0 {
		return
	}
	c.sessionsPurged.Add(float64(n))
}

// SetSessionsCurrent 设置当前存活会话数
func (c *Collector) SetSessionsCurrent(n int) {
	c.sessionsCurrent.Set(float64(n))
}

// RecordStorageError 记录持久化失败
func (c *Collector) RecordStorageError(operation string) {
	c.storageErrors.WithLabelValues(operation).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
