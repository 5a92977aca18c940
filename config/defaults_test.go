package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, SessionConfig{}, cfg.Session)
	assert.NotEqual(t, ProvidersConfig{}, cfg.Providers)
	assert.NotEqual(t, RateLimitConfig{}, cfg.RateLimit)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
}

func TestDefaultSessionConfig(t *testing.T) {
	cfg := DefaultSessionConfig()
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.True(t, cfg.PurgeEnabled)
	assert.False(t, cfg.PersistTranscript)
	assert.False(t, cfg.PersistReplyText)
	assert.Equal(t, "file", cfg.Backend)
	assert.Zero(t, cfg.SweepInterval)
	assert.Equal(t, 1000, cfg.StatsMaxSessions)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
}

func TestDefaultProvidersConfig(t *testing.T) {
	cfg := DefaultProvidersConfig()
	assert.Equal(t, "stub", cfg.STT)
	assert.Equal(t, "stub", cfg.TTS)
	assert.Equal(t, "stub", cfg.LLM)
	assert.True(t, cfg.FallbackToStub)
	assert.NotEqual(t, cfg.OpenAI.ModelFreemium, cfg.OpenAI.ModelPremium)
	assert.Equal(t, 5, cfg.Breaker.Threshold)
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, time.Minute, cfg.Window)
	assert.Equal(t, 60, cfg.MaxRequests)
	assert.Equal(t, "memory", cfg.Backend)
}
