package session

import (
	"time"

	"github.com/BaSui01/voiceflow/config"
	"github.com/BaSui01/voiceflow/types"
)

// =============================================================================
// 📼 会话模型
// =============================================================================

// Status 会话状态
type Status string

const (
	StatusProcessed Status = "processed"
	StatusPurged    Status = "purged"
)

const (
	// MaxRetentionDays 保留期上限
	MaxRetentionDays = 30
	// SensitiveRetention 持久化敏感文本时的保留期上限
	SensitiveRetention = 24 * time.Hour
	// DefaultListLimit 列表查询默认条数
	DefaultListLimit = 50
)

// MetadataContextKey 元数据中唯一允许保留的键
const MetadataContextKey = "context"

// ErrAccessDenied 跨租户或缺少认证租户的读取
var ErrAccessDenied = types.NewError(types.ErrAccessDenied, "access denied")

// Usage 一次请求的用量
type Usage struct {
	InputSeconds  float64 `json:"input_seconds"`
	OutputSeconds float64 `json:"output_seconds"`
	STTMs         int64   `json:"stt_ms"`
	LLMMs         int64   `json:"llm_ms"`
	TTSMs         int64   `json:"tts_ms"`
	TotalMs       int64   `json:"total_ms"`
	ProviderSTT   string  `json:"provider_stt"`
	ProviderLLM   string  `json:"provider_llm"`
	ProviderTTS   string  `json:"provider_tts"`
}

// Session 一次处理完成的音频请求记录
type Session struct {
	ID                     string            `json:"id"`
	CorrelationID          string            `json:"correlation_id"`
	TenantID               string            `json:"tenant_id"`
	UserExternalID         string            `json:"user_external_id,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
	ExpiresAt              time.Time         `json:"expires_at"`
	Status                 Status            `json:"status"`
	RequestMIMEType        string            `json:"request_mime_type,omitempty"`
	RequestDurationSeconds float64           `json:"request_duration_seconds,omitempty"`
	Transcript             string            `json:"transcript,omitempty"`
	ReplyText              string            `json:"reply_text,omitempty"`
	TTSAvailable           bool              `json:"tts_available"`
	TTSStorageRef          string            `json:"tts_storage_ref,omitempty"`
	Usage                  Usage             `json:"usage"`
	Metadata               map[string]string `json:"metadata,omitempty"`
}

// expiredAt 过期时间缺失视为已过期
func (s *Session) expiredAt(now time.Time) bool {
	return s.ExpiresAt.IsZero() || !s.ExpiresAt.After(now)
}

func (s Session) clone() Session {
	if s.Metadata != nil {
		meta := make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			meta[k] = v
		}
		s.Metadata = meta
	}
	return s
}

// =============================================================================
// ⏳ 保留策略
// =============================================================================

// Policy 构造时一次性确定的保留与隐私策略
type Policy struct {
	Window            time.Duration
	PurgeEnabled      bool
	PersistTranscript bool
	PersistReplyText  bool
}

// NormalizeRetentionDays 将保留天数限制在 [0, 30]
func NormalizeRetentionDays(days int) int {
	if days < 0 {
		return 0
	}
	if days > MaxRetentionDays {
		return MaxRetentionDays
	}
	return days
}

// PolicyFromConfig 从会话配置计算保留策略
func PolicyFromConfig(cfg config.SessionConfig) Policy {
	window := time.Duration(NormalizeRetentionDays(cfg.RetentionDays)) * 24 * time.Hour
	if cfg.PersistTranscript || cfg.PersistReplyText {
		window = min(window, SensitiveRetention)
	}
	return Policy{
		Window:            window,
		PurgeEnabled:      cfg.PurgeEnabled,
		PersistTranscript: cfg.PersistTranscript,
		PersistReplyText:  cfg.PersistReplyText,
	}
}

// SanitizeMetadata 仅保留 context 标签（接受 munay_context 或 context 键）
func SanitizeMetadata(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	if v, ok := meta["munay_context"]; ok {
		return map[string]string{MetadataContextKey: v}
	}
	if v, ok := meta[MetadataContextKey]; ok {
		return map[string]string{MetadataContextKey: v}
	}
	return nil
}

// Stats 单租户统计，不包含任何敏感字段
type Stats struct {
	TenantID        string     `json:"api_key_id"`
	SessionsCurrent int        `json:"sessions_current"`
	LimitApplied    int        `json:"limit_applied"`
	Usage           UsageTotal `json:"usage"`
}

// UsageTotal 用量累计
type UsageTotal struct {
	STTMs   int64 `json:"stt_ms"`
	LLMMs   int64 `json:"llm_ms"`
	TTSMs   int64 `json:"tts_ms"`
	TotalMs int64 `json:"total_ms"`
}
