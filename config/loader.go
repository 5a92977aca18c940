// =============================================================================
// 📦 VoiceFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("VOICEFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 VoiceFlow 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Session   SessionConfig   `yaml:"session" env:"SESSION"`
	Tier      TierConfig      `yaml:"tier" env:"TIER"`
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`
	RateLimit RateLimitConfig `yaml:"rate_limit" env:"RATE_LIMIT"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort           int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort        int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout        time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout       time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 音频上传（multipart）的最大字节数
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`
	// 同时设置时以 HTTPS 监听
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// SessionConfig 会话记录保留与持久化配置
// 所有字段均为宽松解析：环境变量格式错误时保留默认值
type SessionConfig struct {
	// 保留天数，由 store 限制在 [0, 30]
	RetentionDays     int    `yaml:"retention_days" env:"RETENTION_DAYS" lenient:"true"`
	PurgeEnabled      bool   `yaml:"purge_enabled" env:"PURGE_ENABLED" lenient:"true"`
	PersistTranscript bool   `yaml:"persist_transcript" env:"PERSIST_TRANSCRIPT" lenient:"true"`
	PersistReplyText  bool   `yaml:"persist_reply_text" env:"PERSIST_REPLY_TEXT" lenient:"true"`
	StoragePath       string `yaml:"storage_path" env:"STORAGE_PATH" lenient:"true"`
	// 存储后端: file, sql, memory
	Backend       string        `yaml:"backend" env:"BACKEND" lenient:"true"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" lenient:"true"`
	// stats 接口扫描的最大会话数
	StatsMaxSessions int `yaml:"stats_max_sessions" env:"STATS_MAX_SESSIONS" lenient:"true"`
}

// TierConfig 授权等级配置
type TierConfig struct {
	// 拥有 premium 等级的租户 ID（已哈希）
	PremiumTenantIDs []string `yaml:"premium_tenant_ids" env:"PREMIUM_TENANT_IDS"`
}

// ProvidersConfig 供应商选择与配置
type ProvidersConfig struct {
	// stub, openai, deepgram
	STT string `yaml:"stt" env:"STT"`
	// stub, openai, elevenlabs
	TTS string `yaml:"tts" env:"TTS"`
	// stub, openai
	LLM string `yaml:"llm" env:"LLM"`
	// 为厂商供应商包装 stub 备用供应商
	FallbackToStub bool `yaml:"fallback_to_stub" env:"FALLBACK_TO_STUB"`

	OpenAI     OpenAIConfig  `yaml:"openai" env:"OPENAI"`
	Deepgram   VendorConfig  `yaml:"deepgram" env:"DEEPGRAM"`
	ElevenLabs VendorConfig  `yaml:"elevenlabs" env:"ELEVENLABS"`
	Breaker    BreakerConfig `yaml:"breaker" env:"BREAKER"`
}

// OpenAIConfig OpenAI 兼容端点配置（STT、TTS、chat 共用）
type OpenAIConfig struct {
	APIKey        string        `yaml:"api_key" env:"API_KEY"`
	BaseURL       string        `yaml:"base_url" env:"BASE_URL"`
	ModelFreemium string        `yaml:"model_freemium" env:"MODEL_FREEMIUM"`
	ModelPremium  string        `yaml:"model_premium" env:"MODEL_PREMIUM"`
	STTModel      string        `yaml:"stt_model" env:"STT_MODEL"`
	TTSModel      string        `yaml:"tts_model" env:"TTS_MODEL"`
	TTSVoice      string        `yaml:"tts_voice" env:"TTS_VOICE"`
	SystemPrompt  string        `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// VendorConfig 通用语音厂商配置
type VendorConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Model   string        `yaml:"model" env:"MODEL"`
	Voice   string        `yaml:"voice" env:"VOICE"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// BreakerConfig 主供应商熔断器配置
type BreakerConfig struct {
	Threshold    int           `yaml:"threshold" env:"THRESHOLD"`
	ResetTimeout time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
	CallTimeout  time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
}

// RateLimitConfig /audio 按 API Key 限流配置
type RateLimitConfig struct {
	Enabled     bool          `yaml:"enabled" env:"ENABLED"`
	Window      time.Duration `yaml:"window" env:"WINDOW"`
	MaxRequests int           `yaml:"max_requests" env:"MAX_REQUESTS"`
	// memory 或 redis
	Backend string `yaml:"backend" env:"BACKEND"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	TLSEnabled   bool   `yaml:"tls_enabled" env:"TLS_ENABLED"`
}

// DatabaseConfig 数据库配置（sql 会话后端使用）
type DatabaseConfig struct {
	// postgres, mysql, sqlite
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "VOICEFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
// 带 lenient:"true" 标签的字段解析失败时跳过
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			if fieldType.Tag.Get("lenient") == "true" {
				continue
			}
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔，忽略空项
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

var (
	validSTT      = map[string]bool{"stub": true, "openai": true, "deepgram": true}
	validTTS      = map[string]bool{"stub": true, "openai": true, "elevenlabs": true}
	validLLM      = map[string]bool{"stub": true, "openai": true}
	validBackends = map[string]bool{"file": true, "sql": true, "memory": true}
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if !validSTT[strings.ToLower(c.Providers.STT)] {
		errs = append(errs, fmt.Sprintf("unknown stt provider %q", c.Providers.STT))
	}
	if !validTTS[strings.ToLower(c.Providers.TTS)] {
		errs = append(errs, fmt.Sprintf("unknown tts provider %q", c.Providers.TTS))
	}
	if !validLLM[strings.ToLower(c.Providers.LLM)] {
		errs = append(errs, fmt.Sprintf("unknown llm provider %q", c.Providers.LLM))
	}
	if !validBackends[strings.ToLower(c.Session.Backend)] {
		errs = append(errs, fmt.Sprintf("unknown session backend %q", c.Session.Backend))
	}
	if c.RateLimit.Enabled && c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, "rate_limit.max_requests must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
