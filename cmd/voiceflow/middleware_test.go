package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/voiceflow/api"
	"github.com/BaSui01/voiceflow/internal/ratelimit"
	"github.com/BaSui01/voiceflow/internal/security"
	"github.com/BaSui01/voiceflow/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("ok"))
})

// =============================================================================
// 测试替身
// =============================================================================

type fakeLimiter struct {
	decision ratelimit.Decision
	err      error
	keys     []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string) (ratelimit.Decision, error) {
	l.keys = append(l.keys, key)
	return l.decision, l.err
}

type fakeHTTPRecorder struct {
	method string
	path   string
	status int
	calls  int
}

func (r *fakeHTTPRecorder) RecordHTTPRequest(method, path string, status int, _ time.Duration, _, _ int64) {
	r.method, r.path, r.status = method, path, status
	r.calls++
}

type fakeRateLimitRecorder struct {
	routes []string
}

func (r *fakeRateLimitRecorder) RecordRateLimitHit(route string) {
	r.routes = append(r.routes, route)
}

// =============================================================================
// Chain / CorrelationID
// =============================================================================

func TestChain_FirstMiddlewareIsOutermost(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler, tag("a"), tag("b"), tag("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestCorrelationID_EchoesClientValue(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.CorrelationID(r.Context())
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set(api.HeaderCorrelationID, "corr-123")
	CorrelationID()(inner).ServeHTTP(w, r)

	assert.Equal(t, "corr-123", w.Header().Get(api.HeaderCorrelationID))
	assert.Equal(t, "corr-123", seen)
}

func TestCorrelationID_GeneratesWhenMissing(t *testing.T) {
	w := httptest.NewRecorder()
	CorrelationID()(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	id := w.Header().Get(api.HeaderCorrelationID)
	assert.Len(t, id, 36)

	w2 := httptest.NewRecorder()
	CorrelationID()(okHandler).ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEqual(t, id, w2.Header().Get(api.HeaderCorrelationID))
}

// =============================================================================
// Recovery / DefaultOutcome
// =============================================================================

func TestRecovery_ReturnsGenericBody(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom: secret detail")
	})
	h := Chain(panicking, CorrelationID(), Recovery(zap.NewNop()))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/audio", nil)
	r.Header.Set(api.HeaderCorrelationID, "corr-panic")
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, api.OutcomeError, w.Header().Get(api.HeaderOutcome))
	assert.Equal(t, api.DetailInternalError, w.Header().Get(api.HeaderOutcomeDetail))
	assert.Equal(t, "corr-panic", w.Header().Get(api.HeaderCorrelationID))
	assert.NotContains(t, w.Body.String(), "secret")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{"detail": "Internal Server Error"}, body)
}

func TestRecovery_RepanicsOnAbortHandler(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestDefaultOutcome(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
		detail  string
	}{
		{
			name:    "implicit 200",
			handler: okHandler,
			want:    api.OutcomeOK,
		},
		{
			name: "client error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			want: api.OutcomeError,
		},
		{
			name: "handler sets its own outcome",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set(api.HeaderOutcome, api.OutcomeSuccess)
				w.Header().Set(api.HeaderOutcomeDetail, api.DetailAudioProcessed)
				w.WriteHeader(http.StatusOK)
			},
			want:   api.OutcomeSuccess,
			detail: api.DetailAudioProcessed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			DefaultOutcome()(tt.handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.want, w.Header().Get(api.HeaderOutcome))
			assert.Equal(t, tt.detail, w.Header().Get(api.HeaderOutcomeDetail))
		})
	}
}

// =============================================================================
// SecurityHeaders / CORS
// =============================================================================

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders()(okHandler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
}

func TestCORS_AllowedOrigin(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("Origin", "https://app.example.com")
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), api.HeaderOutcome)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), api.HeaderAPIKey)
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler)

	preflight := func(origin string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodOptions, "/audio", nil)
		r.Header.Set("Origin", origin)
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
		h.ServeHTTP(w, r)
		return w
	}

	ok := preflight("https://app.example.com")
	assert.Equal(t, http.StatusNoContent, ok.Code)
	assert.Equal(t, "https://app.example.com", ok.Header().Get("Access-Control-Allow-Origin"))

	blocked := preflight("https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, blocked.Code)
	assert.Empty(t, blocked.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_EmptyAllowlistBlocksPreflight(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodOptions, "/audio", nil)
	r.Header.Set("Origin", "https://app.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	CORS(nil)(okHandler).ServeHTTP(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

// =============================================================================
// 指标与路径归一化
// =============================================================================

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/audio", "/audio"},
		{"/audio/stats", "/audio/stats"},
		{"/healthz", "/healthz"},
		{"/sessions/12345", "/sessions/:id"},
		{"/sessions/550e8400-e29b-41d4-a716-446655440000", "/sessions/:id"},
		{"/unknown/path", "/unknown/path"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &fakeHTTPRecorder{}
	h := MetricsMiddleware(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sessions/42", nil))

	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/sessions/:id", rec.path)
	assert.Equal(t, http.StatusTeapot, rec.status)
}

func TestMetricsMiddleware_CountsRecoveredPanics(t *testing.T) {
	rec := &fakeHTTPRecorder{}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), MetricsMiddleware(rec), Recovery(zap.NewNop()))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/audio", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.status)
}

// =============================================================================
// RateLimit
// =============================================================================

func TestRateLimit_Denied(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 2500 * time.Millisecond}}
	recorder := &fakeRateLimitRecorder{}
	h := Chain(okHandler, CorrelationID(),
		RateLimit(limiter, defaultRateLimitAllowlist, recorder, zap.NewNop()))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/audio", nil)
	r.Header.Set(api.HeaderAPIKey, "key-1")
	r.Header.Set(api.HeaderCorrelationID, "corr-429")
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3", w.Header().Get(api.HeaderRetryAfter))
	assert.Equal(t, api.OutcomeError, w.Header().Get(api.HeaderOutcome))
	assert.Equal(t, api.DetailRateLimit, w.Header().Get(api.HeaderOutcomeDetail))
	assert.Equal(t, "corr-429", w.Header().Get(api.HeaderCorrelationID))
	assert.Equal(t, []string{"/audio"}, recorder.routes)

	var body api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate limit exceeded", body.Detail)
}

func TestRateLimit_Allowed(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 4}}
	h := RateLimit(limiter, defaultRateLimitAllowlist, nil, zap.NewNop())(okHandler)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/audio", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestRateLimit_AllowlistBypassesLimiter(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: false}}
	h := RateLimit(limiter, defaultRateLimitAllowlist, nil, zap.NewNop())(okHandler)

	for _, path := range defaultRateLimitAllowlist {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
	assert.Empty(t, limiter.keys)
}

func TestRateLimit_FailsOpenOnLimiterError(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	h := RateLimit(limiter, defaultRateLimitAllowlist, nil, zap.NewNop())(okHandler)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/audio", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/audio", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	assert.Equal(t, "ip:203.0.113.7", rateLimitKey(r))

	r.Header.Set(api.HeaderAPIKey, "  secret-key  ")
	key := rateLimitKey(r)
	assert.Equal(t, "tenant:"+security.DeriveTenantID("secret-key"), key)
	assert.False(t, strings.Contains(key, "secret-key"))
}
