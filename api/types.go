package api

import "github.com/BaSui01/voiceflow/session"

// =============================================================================
// 📮 请求头
// =============================================================================

const (
	HeaderAPIKey        = "X-API-Key"
	HeaderCorrelationID = "X-Correlation-Id"
	HeaderOutcome       = "X-Outcome"
	HeaderOutcomeDetail = "X-Outcome-Detail"
	HeaderRetryAfter    = "Retry-After"

	// 客户端扩展头
	HeaderLLMTier = "x-munay-llm-tier"
	HeaderUserID  = "x-munay-user-id"
	HeaderContext = "x-munay-context"
)

// Outcome 取值
const (
	OutcomeOK      = "ok"
	OutcomeSuccess = "success"
	OutcomeError   = "error"

	DetailAudioProcessed = "audio_processed"
	DetailRateLimit      = "rate_limit"
	DetailInternalError  = "internal_error"
)

// AllowedContexts x-munay-context 允许的取值
var AllowedContexts = map[string]struct{}{
	"diario_emocional": {},
	"coach_habitos":    {},
	"general":          {},
}

// =============================================================================
// 📦 响应结构
// =============================================================================

// ErrorResponse 错误响应体
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

// StatsResponse GET /audio/stats 响应
type StatsResponse struct {
	APIKeyID string             `json:"api_key_id"`
	Totals   StatsTotals        `json:"totals"`
	Usage    session.UsageTotal `json:"usage"`
}

// StatsTotals 会话计数
type StatsTotals struct {
	SessionsCurrent int `json:"sessions_current"`
	LimitApplied    int `json:"limit_applied"`
}

// NewStatsResponse 从存储统计构造响应
func NewStatsResponse(stats session.Stats) StatsResponse {
	return StatsResponse{
		APIKeyID: stats.TenantID,
		Totals: StatsTotals{
			SessionsCurrent: stats.SessionsCurrent,
			LimitApplied:    stats.LimitApplied,
		},
		Usage: stats.Usage,
	}
}

// VersionInfo GET /version 响应
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
}
