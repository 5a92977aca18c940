package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/voiceflow/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

// mockHealthCheck 模拟健康检查
type mockHealthCheck struct {
	name string
	err  error
}

func (m *mockHealthCheck) Name() string {
	return m.name
}

func (m *mockHealthCheck) Check(ctx context.Context) error {
	return m.err
}

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func TestHealthHandler_HandleHealthz(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	handler.HandleHealthz(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Empty(t, w.Header().Get(api.HeaderOutcomeDetail))
}

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name           string
		checks         []HealthCheck
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "no checks",
			checks:         nil,
			expectedStatus: http.StatusOK,
			expectedBody:   "ok",
		},
		{
			name: "all checks pass",
			checks: []HealthCheck{
				&mockHealthCheck{name: "session_store"},
				&mockHealthCheck{name: "redis"},
			},
			expectedStatus: http.StatusOK,
			expectedBody:   "ok",
		},
		{
			name: "one check fails",
			checks: []HealthCheck{
				&mockHealthCheck{name: "session_store"},
				&mockHealthCheck{name: "database", err: errors.New("connection refused")},
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(nil)
			for _, check := range tt.checks {
				handler.RegisterCheck(check)
			}

			w := httptest.NewRecorder()
			handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)

			var status HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, tt.expectedBody, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))

			for _, check := range tt.checks {
				result := status.Checks[check.Name()]
				if check.(*mockHealthCheck).err != nil {
					assert.Equal(t, "fail", result.Status)
					assert.Equal(t, "connection refused", result.Message)
				} else {
					assert.Equal(t, "pass", result.Status)
				}
			}
		})
	}
}

func TestHealthHandler_HandleReadyFailureOutcome(t *testing.T) {
	handler := NewHealthHandler(nil)
	handler.RegisterCheck(&mockHealthCheck{name: "session_store", err: errors.New("down")})

	w := httptest.NewRecorder()
	handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, api.OutcomeError, w.Header().Get(api.HeaderOutcome))
	assert.Equal(t, "readiness.unavailable", w.Header().Get(api.HeaderOutcomeDetail))
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleVersion("1.2.3", "", "")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"version":"1.2.3"}`, w.Body.String())
}

func TestPingCheck(t *testing.T) {
	called := false
	check := NewPingCheck("session_store", func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.Equal(t, "session_store", check.Name())
	assert.NoError(t, check.Check(context.Background()))
	assert.True(t, called)
}

// rendezvousCheck 只有在所有检查都已开始后才返回，串行执行会超时
type rendezvousCheck struct {
	name    string
	arrived *sync.WaitGroup
}

func (c *rendezvousCheck) Name() string { return c.name }

func (c *rendezvousCheck) Check(ctx context.Context) error {
	c.arrived.Done()
	done := make(chan struct{})
	go func() {
		c.arrived.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return errors.New("checks ran sequentially")
	}
}

func TestHealthHandler_HandleReadyRunsChecksConcurrently(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(3)

	handler := NewHealthHandler(nil)
	for _, name := range []string{"session_store", "database", "redis"} {
		handler.RegisterCheck(&rendezvousCheck{name: name, arrived: &arrived})
	}

	w := httptest.NewRecorder()
	handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Len(t, status.Checks, 3)
	for name, result := range status.Checks {
		assert.Equal(t, "pass", result.Status, name)
		assert.GreaterOrEqual(t, result.LatencyMs, int64(0))
	}
}
