package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/BaSui01/voiceflow/api"
	"github.com/BaSui01/voiceflow/internal/security"
	"github.com/BaSui01/voiceflow/session"
	"github.com/BaSui01/voiceflow/types"
	"go.uber.org/zap"
)

// StatsReader 租户统计端口
type StatsReader interface {
	Stats(ctx context.Context, tenantID, authTenantID string, maxSessions int) (session.Stats, error)
}

// StatsHandler 处理 GET /audio/stats
type StatsHandler struct {
	store       StatsReader
	maxSessions int
	logger      *zap.Logger
}

// NewStatsHandler 创建统计处理器
func NewStatsHandler(store StatsReader, maxSessions int, logger *zap.Logger) *StatsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsHandler{
		store:       store,
		maxSessions: maxSessions,
		logger:      logger.With(zap.String("component", "stats_handler")),
	}
}

// HandleStats 返回当前 API Key 对应租户的会话汇总。
// 租户只从 X-API-Key 派生，客户端提供的其他标识一律忽略。
// @Summary 租户用量统计
// @Tags 音频
// @Produce json
// @Param X-API-Key header string true "API Key"
// @Success 200 {object} api.StatsResponse "统计结果"
// @Failure 401 {object} api.ErrorResponse "缺少 API Key"
// @Router /audio/stats [get]
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get(api.HeaderAPIKey))
	if key == "" {
		WriteErrorMessage(w, types.ErrUnauthorized, "X-API-Key required", h.logger)
		return
	}

	tenantID := security.DeriveTenantID(key)
	stats, err := h.store.Stats(r.Context(), tenantID, tenantID, h.maxSessions)
	if err != nil {
		var typed *types.Error
		if !errors.As(err, &typed) {
			typed = types.NewError(types.ErrInternal, "failed to load stats").WithCause(err)
		}
		WriteError(w, typed, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.NewStatsResponse(stats))
}
