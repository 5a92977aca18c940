package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/BaSui01/voiceflow/api"
	"github.com/BaSui01/voiceflow/pipeline"
	"github.com/BaSui01/voiceflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🎙️ 音频 Handler
// =============================================================================

// AudioRoute 音频路由，用作路由级指标标签
const AudioRoute = "/audio"

const (
	defaultMaxUploadBytes = 10 << 20
	multipartMemory       = 8 << 20
)

// 上传字段名，audio_file 优先
var audioFormFields = []string{"audio_file", "file"}

// AudioProcessor 音频编排端口
type AudioProcessor interface {
	Process(ctx context.Context, req pipeline.RequestContext) pipeline.Result
}

// RouteRecorder 路由级错误与等级拒绝计数
type RouteRecorder interface {
	RecordRouteError(route string)
	RecordTierDenied(route, requestedTier, authorizedTier string)
}

type nopRouteRecorder struct{}

func (nopRouteRecorder) RecordRouteError(string)                 {}
func (nopRouteRecorder) RecordTierDenied(string, string, string) {}

// AudioHandler 处理 POST /audio
type AudioHandler struct {
	processor      AudioProcessor
	recorder       RouteRecorder
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewAudioHandler 创建音频处理器
func NewAudioHandler(processor AudioProcessor, recorder RouteRecorder, maxUploadBytes int64, logger *zap.Logger) *AudioHandler {
	if recorder == nil {
		recorder = nopRouteRecorder{}
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AudioHandler{
		processor:      processor,
		recorder:       recorder,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(zap.String("component", "audio_handler")),
	}
}

// HandleAudio 处理音频上传
// @Summary 处理音频
// @Description 上传音频，依次执行 STT、LLM、TTS 并返回结果
// @Tags 音频
// @Accept multipart/form-data
// @Produce json
// @Param X-API-Key header string true "API Key"
// @Param x-munay-llm-tier header string false "请求的 LLM 等级"
// @Param audio_file formData file true "音频文件"
// @Success 200 {object} pipeline.Response "处理成功"
// @Failure 400 {object} api.ErrorResponse "请求无效"
// @Failure 401 {object} api.ErrorResponse "缺少 API Key"
// @Failure 403 {object} api.ErrorResponse "等级超出授权"
// @Failure 415 {object} api.ErrorResponse "不支持的媒体类型"
// @Router /audio [post]
func (h *AudioHandler) HandleAudio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	corrID, _ := types.CorrelationID(ctx)

	req := pipeline.RequestContext{
		Credential:    strings.TrimSpace(r.Header.Get(api.HeaderAPIKey)),
		CorrelationID: corrID,
	}

	// 缺少凭证时直接交给编排器，保证 unauthorized 优先于请求体错误
	if req.Credential != "" {
		if err := h.bind(w, r, &req); err != nil {
			h.recorder.RecordRouteError(AudioRoute)
			WriteError(w, err, h.logger)
			return
		}
	}

	result := h.processor.Process(ctx, req)
	if !result.OK() {
		h.writePipelineError(w, result.Err)
		return
	}

	SetOutcome(w, api.OutcomeSuccess, api.DetailAudioProcessed)
	WriteJSON(w, http.StatusOK, result.Response)
}

// bind 从 multipart 请求体与扩展头填充请求上下文
func (h *AudioHandler) bind(w http.ResponseWriter, r *http.Request, req *pipeline.RequestContext) *types.Error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return types.NewError(types.ErrBadRequest, "audio file too large").
				WithHTTPStatus(http.StatusRequestEntityTooLarge).
				WithCause(err)
		}
		return types.NewError(types.ErrBadRequest, "invalid multipart body").WithCause(err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := formFile(r)
	if err != nil {
		return types.NewError(types.ErrBadRequest, "audio_file is required").WithCause(err)
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		return types.NewError(types.ErrBadRequest, "failed to read audio file").WithCause(err)
	}

	req.Audio = audio
	req.MIMEType = partMIMEType(header)
	req.Locale = strings.TrimSpace(r.FormValue("locale"))
	req.UserExternalID = strings.TrimSpace(r.FormValue("user_external_id"))

	meta := make(map[string]string, 2)
	if v := strings.TrimSpace(r.Header.Get(api.HeaderContext)); v != "" {
		if _, ok := api.AllowedContexts[v]; !ok {
			return types.NewError(types.ErrBadRequest, "invalid x-munay-context")
		}
		meta["munay_context"] = v
	}
	if v := strings.TrimSpace(r.Header.Get(api.HeaderUserID)); v != "" {
		meta["munay_user_id"] = v
	}
	if len(meta) > 0 {
		req.Metadata = meta
	}

	// 空白的等级头视为未请求
	if v := strings.TrimSpace(r.Header.Get(api.HeaderLLMTier)); v != "" {
		req.RequestedTier = &v
	}
	return nil
}

func (h *AudioHandler) writePipelineError(w http.ResponseWriter, pe *pipeline.PipelineError) {
	h.recorder.RecordRouteError(AudioRoute)
	if pe.Code == types.ErrTierForbidden {
		h.recorder.RecordTierDenied(AudioRoute, pe.Details["requested_tier"], pe.Details["authorized_tier"])
	}
	WriteError(w, toAPIError(pe), h.logger)
}

// toAPIError 将编排错误转换为对外错误；等级错误的 detail 使用稳定的错误标识
func toAPIError(pe *pipeline.PipelineError) *types.Error {
	e := types.NewError(pe.Code, pe.Message).WithCause(pe.Cause)
	e.Details = pe.Details
	e.Provider = pe.Details["provider"]
	if pe.Code == types.ErrTierForbidden || pe.Code == types.ErrTierInvalid {
		e.Message = OutcomeDetail(e)
	}
	return e
}

func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	var lastErr error
	for _, field := range audioFormFields {
		file, header, err := r.FormFile(field)
		if err == nil {
			return file, header, nil
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

// partMIMEType 优先使用分片的 Content-Type，缺失时按扩展名推断
func partMIMEType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			return mediaType
		}
		return ct
	}
	if byExt := mime.TypeByExtension(filepath.Ext(header.Filename)); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}
