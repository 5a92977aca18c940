// =============================================================================
// 📦 VoiceFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Session:   DefaultSessionConfig(),
		Tier:      DefaultTierConfig(),
		Providers: DefaultProvidersConfig(),
		RateLimit: DefaultRateLimitConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxUploadBytes:  10 << 20,
	}
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		RetentionDays:     30,
		PurgeEnabled:      true,
		PersistTranscript: false,
		PersistReplyText:  false,
		StoragePath:       "/tmp/voiceflow_audio_sessions.json",
		Backend:           "file",
		SweepInterval:     0,
		StatsMaxSessions:  1000,
	}
}

// DefaultTierConfig 返回默认等级配置（无 premium 租户）
func DefaultTierConfig() TierConfig {
	return TierConfig{}
}

// DefaultProvidersConfig 返回默认供应商配置
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		STT:            "stub",
		TTS:            "stub",
		LLM:            "stub",
		FallbackToStub: true,
		OpenAI: OpenAIConfig{
			BaseURL:       "https://api.openai.com",
			ModelFreemium: "gpt-4o-mini",
			ModelPremium:  "gpt-4o",
			STTModel:      "whisper-1",
			TTSModel:      "tts-1",
			TTSVoice:      "alloy",
			SystemPrompt:  "Responde de forma clara y breve.",
			Timeout:       30 * time.Second,
		},
		Deepgram: VendorConfig{
			BaseURL: "https://api.deepgram.com",
			Model:   "nova-2",
			Timeout: 30 * time.Second,
		},
		ElevenLabs: VendorConfig{
			BaseURL: "https://api.elevenlabs.io",
			Model:   "eleven_multilingual_v2",
			Voice:   "21m00Tcm4TlvDq8ikWAM",
			Timeout: 30 * time.Second,
		},
		Breaker: BreakerConfig{
			Threshold:    5,
			ResetTimeout: 60 * time.Second,
			CallTimeout:  30 * time.Second,
		},
	}
}

// DefaultRateLimitConfig 返回默认限流配置
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:     false,
		Window:      60 * time.Second,
		MaxRequests: 60,
		Backend:     "memory",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "voiceflow",
		Password:        "",
		Name:            "voiceflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "voiceflow",
		SampleRate:   0.1,
	}
}
