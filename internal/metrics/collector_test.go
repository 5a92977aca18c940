package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.providerFallbacksTotal)
	assert.NotNil(t, collector.pipelineStageDuration)
	assert.NotNil(t, collector.sessionsCurrent)
}

func TestNewCollector_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(nextTestNamespace(), nil)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("POST", "/audio", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("POST", "/audio", 201, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("POST", "/audio", 415, 5*time.Millisecond, 10, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/audio", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/audio", "4xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.httpRequestDuration))
}

func TestCollector_RouteCounters(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRouteError("/audio")
	collector.RecordRouteError("/audio")
	collector.RecordTierDenied("/audio", "premium", "freemium")
	collector.RecordRateLimitHit("/audio")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.errorsTotal.WithLabelValues("/audio")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.tierDeniedTotal.WithLabelValues("/audio", "premium", "freemium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.rateLimitHitsTotal.WithLabelValues("/audio")))
}

func TestCollector_ProviderMetrics(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordProviderRequest("stt", "openai-stt|stub-stt", "success", 120*time.Millisecond)
	collector.RecordProviderFallback("stt", "openai-stt", "stub-stt")
	collector.RecordLLMTokens("openai-llm", "gpt-4o-mini", 100, 50)
	collector.SetProviderBreakerState("stt", "openai-stt", 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.providerRequestsTotal.WithLabelValues("stt", "openai-stt|stub-stt", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.providerFallbacksTotal.WithLabelValues("stt", "openai-stt", "stub-stt")))
	assert.Equal(t, 100.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai-llm", "gpt-4o-mini", "prompt")))
	assert.Equal(t, 50.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai-llm", "gpt-4o-mini", "completion")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.providerBreakerState.WithLabelValues("stt", "openai-stt")))
}

func TestCollector_PipelineMetrics(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordPipelineStage("transcribing", 100*time.Millisecond)
	collector.RecordPipelineStage("generating", 200*time.Millisecond)
	collector.RecordPipelineOutcome("success")
	collector.RecordPipelineOutcome("tier_forbidden")

	assert.Equal(t, 2, testutil.CollectAndCount(collector.pipelineStageDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.pipelineOutcomesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.pipelineOutcomesTotal.WithLabelValues("tier_forbidden")))
}

func TestCollector_SessionMetrics(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordSessionWrite()
	collector.RecordSessionRead()
	collector.RecordSessionRead()
	collector.RecordSessionsPurged(3)
	collector.RecordSessionsPurged(0)
	collector.SetSessionsCurrent(7)
	collector.RecordStorageError("save")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.memWritesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.memReadsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.sessionsPurged))
	assert.Equal(t, 7.0, testutil.ToFloat64(collector.sessionsCurrent))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.storageErrors.WithLabelValues("save")))
}

func TestCollector_RecordDatabaseMetrics(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBQuery("sqlite", "save_sessions", 20*time.Millisecond)
	collector.RecordDBConnections("sqlite", 10, 5)

	assert.Greater(t, testutil.CollectAndCount(collector.dbQueryDuration), 0)
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("sqlite")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("sqlite")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/healthz", 200, time.Millisecond, 0, 16)
			collector.RecordSessionWrite()
			collector.RecordProviderFallback("tts", "elevenlabs", "stub-tts")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/healthz", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.memWritesTotal))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.providerFallbacksTotal.WithLabelValues("tts", "elevenlabs", "stub-tts")))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{302, "3xx"},
		{429, "4xx"},
		{504, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}
