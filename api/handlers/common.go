package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/BaSui01/voiceflow/api"
	"github.com/BaSui01/voiceflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 头已写出，编码失败时无法再修改响应
	_ = json.NewEncoder(w).Encode(data)
}

// SetOutcome 设置 X-Outcome 与可选的 X-Outcome-Detail
func SetOutcome(w http.ResponseWriter, outcome, detail string) {
	w.Header().Set(api.HeaderOutcome, outcome)
	if detail != "" {
		w.Header().Set(api.HeaderOutcomeDetail, detail)
	}
}

// WriteError 写入错误响应（从 types.Error）
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := err.Status()

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
		}
		if err.Provider != "" {
			fields = append(fields, zap.String("provider", err.Provider))
		}
		if err.Cause != nil {
			fields = append(fields, zap.Error(err.Cause))
		}
		if status >= http.StatusInternalServerError {
			logger.Error("API error", fields...)
		} else {
			logger.Info("API request rejected", fields...)
		}
	}

	SetOutcome(w, api.OutcomeError, OutcomeDetail(err))
	WriteJSON(w, status, api.ErrorResponse{
		Detail: err.Message,
		Code:   string(err.Code),
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message), logger)
}

// =============================================================================
// 🔄 错误码到 X-Outcome-Detail 映射
// =============================================================================

// OutcomeDetail 返回错误对应的 X-Outcome-Detail 取值
func OutcomeDetail(err *types.Error) string {
	switch err.Code {
	case types.ErrUnauthorized:
		return "auth.unauthorized"
	case types.ErrAccessDenied:
		return "auth.forbidden"
	case types.ErrBadRequest:
		return "audio.bad_request"
	case types.ErrUnsupportedMediaType:
		return "audio.unsupported_media_type"
	case types.ErrTierInvalid:
		return "llm.tier_invalid"
	case types.ErrTierForbidden:
		return "llm.tier_forbidden"
	case types.ErrRateLimited:
		return api.DetailRateLimit
	case types.ErrSTT:
		return "stt.provider_error"
	case types.ErrLLM:
		return "llm.provider_error"
	case types.ErrTTS:
		return "tts.provider_error"
	case types.ErrProviderTimeout:
		if stage := err.Details["stage"]; stage != "" {
			return stage + ".timeout"
		}
		return "provider_timeout"
	case types.ErrStorage:
		return "storage.unavailable"
	default:
		return api.DetailInternalError
	}
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码与写出字节数
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode   int
	Written      bool
	BytesWritten int64
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.BytesWritten += int64(n)
	return n, err
}

// Unwrap 供 http.ResponseController 访问底层 writer
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
