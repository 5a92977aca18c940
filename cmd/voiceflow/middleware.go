package main

import (
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/voiceflow/api"
	"github.com/BaSui01/voiceflow/api/handlers"
	"github.com/BaSui01/voiceflow/internal/ratelimit"
	"github.com/BaSui01/voiceflow/internal/security"
	"github.com/BaSui01/voiceflow/types"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Middleware 类型定义
type Middleware func(http.Handler) http.Handler

// Chain 将多个中间件串联，第一个在最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// =============================================================================
// 🔗 Correlation ID
// =============================================================================

// CorrelationID 沿用客户端的 X-Correlation-Id，缺失时生成 uuid；
// 在调用下游之前写入响应头，panic 或提前返回的响应也会携带。
func CorrelationID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(api.HeaderCorrelationID))
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(api.HeaderCorrelationID, id)
			next.ServeHTTP(w, r.WithContext(types.WithCorrelationID(r.Context(), id)))
		})
	}
}

// =============================================================================
// 🛟 Recovery
// =============================================================================

// Recovery 捕获 panic，返回 500 {"detail":"Internal Server Error"}
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				corrID, _ := types.CorrelationID(r.Context())
				logger.Error("panic recovered",
					zap.Any("error", rec),
					zap.String("path", r.URL.Path),
					zap.String("corr_id", corrID),
					zap.Stack("stack"),
				)
				handlers.SetOutcome(w, api.OutcomeError, api.DetailInternalError)
				handlers.WriteJSON(w, http.StatusInternalServerError, api.ErrorResponse{Detail: "Internal Server Error"})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 🏷️ 默认 X-Outcome
// =============================================================================

type outcomeWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *outcomeWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if w.Header().Get(api.HeaderOutcome) == "" {
			outcome := api.OutcomeOK
			if code >= http.StatusBadRequest {
				outcome = api.OutcomeError
			}
			w.Header().Set(api.HeaderOutcome, outcome)
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *outcomeWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *outcomeWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// DefaultOutcome 处理器未显式设置 X-Outcome 时补上 ok（4xx/5xx 为 error）
func DefaultOutcome() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(&outcomeWriter{ResponseWriter: w}, r)
		})
	}
}

// =============================================================================
// 📝 请求日志
// =============================================================================

// RequestLogger 每个请求一条结构化日志
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			corrID, _ := types.CorrelationID(r.Context())
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.StatusCode),
				zap.String("outcome", rw.Header().Get(api.HeaderOutcome)),
				zap.String("corr_id", corrID),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// =============================================================================
// 📊 HTTP 指标
// =============================================================================

// HTTPRecorder 接收 HTTP 请求指标（由 metrics.Collector 实现）
type HTTPRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64)
}

// MetricsMiddleware 记录请求耗时、状态码与大小
func MetricsMiddleware(recorder HTTPRecorder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}
			recorder.RecordHTTPRequest(r.Method, normalizePath(r.URL.Path), rw.StatusCode,
				time.Since(start), requestSize, rw.BytesWritten)
		})
	}
}

// knownRoutes 不做归一化的静态路由
var knownRoutes = map[string]struct{}{
	handlers.AudioRoute: {},
	"/audio/stats":      {},
	"/healthz":          {},
	"/readyz":           {},
	"/version":          {},
	"/metrics":          {},
}

var pathSegmentPattern = regexp.MustCompile(
	`^[0-9a-fA-F]{8,}(-[0-9a-fA-F]{4,}){0,4}$|^[0-9]+$`,
)

// normalizePath 把动态 ID 段替换为 :id，限制标签基数
func normalizePath(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}

	segments := strings.Split(path, "/")
	normalized := false
	for i, seg := range segments {
		if seg != "" && pathSegmentPattern.MatchString(seg) {
			segments[i] = ":id"
			normalized = true
		}
	}
	if !normalized {
		return path
	}
	return strings.Join(segments, "/")
}

// =============================================================================
// 🔭 OpenTelemetry
// =============================================================================

// OTelTracing 为每个请求创建 server span，并提取上游 trace 上下文
func OTelTracing() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			route := normalizePath(r.URL.Path)
			ctx, span := otel.Tracer("voiceflow/http").Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.HTTPRoute(route),
				),
			)
			defer span.End()

			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(
				semconv.HTTPResponseStatusCode(rw.StatusCode),
				attribute.String("voiceflow.outcome", rw.Header().Get(api.HeaderOutcome)),
			)
			if corrID, ok := types.CorrelationID(ctx); ok {
				span.SetAttributes(attribute.String("voiceflow.correlation_id", corrID))
			}
			if rw.StatusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.StatusCode))
			}
		})
	}
}

// =============================================================================
// 🛡️ 安全头与 CORS
// =============================================================================

// SecurityHeaders 添加通用安全响应头
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Content-Security-Policy", "default-src 'none'")
			next.ServeHTTP(w, r)
		})
	}
}

var (
	corsAllowHeaders = strings.Join([]string{
		"Content-Type", api.HeaderAPIKey, api.HeaderCorrelationID,
		api.HeaderLLMTier, api.HeaderUserID, api.HeaderContext,
	}, ", ")
	corsExposeHeaders = strings.Join([]string{
		api.HeaderCorrelationID, api.HeaderOutcome, api.HeaderOutcomeDetail, api.HeaderRetryAfter,
	}, ", ")
)

// CORS 仅对白名单中的 Origin 返回 Access-Control-Allow-Origin；
// 白名单为空时拒绝所有跨域预检。
func CORS(allowedOrigins []string) Middleware {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			originSet[o] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			_, allowed := originSet[origin]
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
				h.Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 🚦 限流
// =============================================================================

// RateLimitRecorder 接收限流命中指标
type RateLimitRecorder interface {
	RecordRateLimitHit(route string)
}

// defaultRateLimitAllowlist 不参与限流的路径
var defaultRateLimitAllowlist = []string{"/metrics", "/healthz", "/readyz", "/version"}

// RateLimit 按租户限流：有 X-API-Key 时以派生租户 ID 为 key，否则按客户端 IP。
// 限流后端出错时放行请求。
func RateLimit(limiter ratelimit.Limiter, allowlist []string, recorder RateLimitRecorder, logger *zap.Logger) Middleware {
	skip := make(map[string]struct{}, len(allowlist))
	for _, p := range allowlist {
		skip[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := rateLimitKey(r)
			decision, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					zap.String("path", r.URL.Path), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			route := normalizePath(r.URL.Path)
			if recorder != nil {
				recorder.RecordRateLimitHit(route)
			}
			corrID, _ := types.CorrelationID(r.Context())
			logger.Info("rate limit exceeded",
				zap.String("route", route),
				zap.String("limit_key", key),
				zap.Duration("retry_after", decision.RetryAfter),
				zap.String("corr_id", corrID),
			)

			w.Header().Set(api.HeaderRetryAfter, strconv.Itoa(decision.RetryAfterSeconds()))
			handlers.SetOutcome(w, api.OutcomeError, api.DetailRateLimit)
			handlers.WriteJSON(w, http.StatusTooManyRequests, api.ErrorResponse{
				Detail: "rate limit exceeded",
				Code:   string(types.ErrRateLimited),
			})
		})
	}
}

// rateLimitKey 原始凭证不出现在 key 中
func rateLimitKey(r *http.Request) string {
	if cred := strings.TrimSpace(r.Header.Get(api.HeaderAPIKey)); cred != "" {
		return "tenant:" + security.DeriveTenantID(cred)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}
