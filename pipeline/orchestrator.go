package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/voiceflow/internal/security"
	"github.com/BaSui01/voiceflow/llm/reply"
	"github.com/BaSui01/voiceflow/llm/speech"
	"github.com/BaSui01/voiceflow/llm/tier"
	"github.com/BaSui01/voiceflow/session"
	"github.com/BaSui01/voiceflow/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/voiceflow/pipeline"

// SessionCreator 会话写入端口
type SessionCreator interface {
	Create(ctx context.Context, s session.Session) session.Session
}

// Recorder 编排器的指标回调
type Recorder interface {
	RecordPipelineStage(stage string, duration time.Duration)
	RecordPipelineOutcome(outcome string)
	RecordProviderRequest(stage, provider, status string, duration time.Duration)
	RecordLLMTokens(provider, model string, promptTokens, completionTokens int)
}

type nopRecorder struct{}

func (nopRecorder) RecordPipelineStage(string, time.Duration)                   {}
func (nopRecorder) RecordPipelineOutcome(string)                                {}
func (nopRecorder) RecordProviderRequest(string, string, string, time.Duration) {}
func (nopRecorder) RecordLLMTokens(string, string, int, int)                    {}

// Options 编排器依赖
type Options struct {
	STT      speech.STTProvider
	LLM      reply.Generator
	TTS      speech.TTSProvider
	Sessions SessionCreator
	Resolver *tier.Resolver
	Logger   *zap.Logger
	Recorder Recorder
}

// =============================================================================
// 🎛️ 编排器
// =============================================================================

// Orchestrator 串行调用 STT → LLM → TTS 并记录会话
type Orchestrator struct {
	stt      speech.STTProvider
	llm      reply.Generator
	tts      speech.TTSProvider
	sessions SessionCreator
	resolver *tier.Resolver
	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// NewOrchestrator 创建编排器
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.STT == nil || opts.LLM == nil || opts.TTS == nil {
		return nil, fmt.Errorf("pipeline requires stt, llm and tts providers")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("pipeline requires a session store")
	}
	if opts.Resolver == nil {
		opts.Resolver = tier.NewResolver(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	return &Orchestrator{
		stt:      opts.STT,
		llm:      opts.LLM,
		tts:      opts.TTS,
		sessions: opts.Sessions,
		resolver: opts.Resolver,
		logger:   opts.Logger.With(zap.String("component", "pipeline")),
		recorder: opts.Recorder,
		tracer:   otel.Tracer(instrumentationName),
	}, nil
}

// Process 处理一次请求，返回 Response 或 PipelineError 之一。
// 内部 panic 会被恢复为 internal_error。
func (o *Orchestrator) Process(ctx context.Context, req RequestContext) (result Result) {
	corrID := req.CorrelationID
	if corrID == "" {
		corrID = uuid.New().String()
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(attribute.String("correlation_id", corrID)),
	)
	defer span.End()

	r := &run{
		o:       o,
		span:    span,
		state:   StateValidating,
		entered: time.Now(),
		logger:  o.logger.With(zap.String("correlation_id", corrID)),
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("pipeline panic recovered",
				zap.Any("panic", rec),
				zap.String("state", string(r.state)),
				zap.Stack("stack"),
			)
			result = Result{Err: r.fail(types.ErrInternal, "internal error", nil, fmt.Errorf("panic: %v", rec))}
		}
		outcome := "success"
		if result.Err != nil {
			outcome = string(result.Err.Code)
		}
		o.recorder.RecordPipelineOutcome(outcome)
	}()

	return r.execute(ctx, req, corrID)
}

// =============================================================================
// 🔁 单次执行
// =============================================================================

type run struct {
	o       *Orchestrator
	span    trace.Span
	state   State
	entered time.Time
	logger  *zap.Logger
}

// enter 切换状态并记录上一状态耗时
func (r *run) enter(next State) {
	now := time.Now()
	r.o.recorder.RecordPipelineStage(string(r.state), now.Sub(r.entered))
	r.span.AddEvent("state.transition", trace.WithAttributes(
		attribute.String("from", string(r.state)),
		attribute.String("to", string(next)),
	))
	r.state = next
	r.entered = now
}

// fail 进入 Failed 状态并构造错误结果
func (r *run) fail(code types.ErrorCode, message string, details map[string]string, cause error) *PipelineError {
	failedAt := r.state
	r.enter(StateFailed)

	r.span.SetStatus(codes.Error, string(code))
	r.span.SetAttributes(attribute.String("pipeline.error_code", string(code)))
	if cause != nil {
		r.span.RecordError(cause)
	}

	fields := []zap.Field{
		zap.String("code", string(code)),
		zap.String("state", string(failedAt)),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	if failedAt == StateValidating {
		r.logger.Debug("pipeline rejected request", fields...)
	} else {
		r.logger.Warn("pipeline failed", fields...)
	}

	return &PipelineError{
		Code:    code,
		Message: message,
		Details: details,
		State:   failedAt,
		Cause:   cause,
	}
}

// stageError 将供应商错误映射为超时或阶段错误码
func (r *run) stageError(code types.ErrorCode, stage, provider, message string, err error) *PipelineError {
	details := map[string]string{"stage": stage}
	if provider != "" {
		details["provider"] = provider
	}
	if types.IsTimeout(err) {
		return r.fail(types.ErrProviderTimeout, stage+" provider timed out", details, err)
	}
	return r.fail(code, message, details, err)
}

func (r *run) execute(ctx context.Context, req RequestContext, corrID string) Result {
	// 校验
	if strings.TrimSpace(req.Credential) == "" {
		return Result{Err: r.fail(types.ErrUnauthorized, "missing api key", nil, nil)}
	}
	if len(req.Audio) == 0 {
		return Result{Err: r.fail(types.ErrBadRequest, "empty audio", nil, nil)}
	}
	if !strings.HasPrefix(strings.ToLower(req.MIMEType), "audio/") {
		return Result{Err: r.fail(types.ErrUnsupportedMediaType, "unsupported media type",
			map[string]string{"mime_type": req.MIMEType}, nil)}
	}

	authorized := r.o.resolver.Authorized(req.Credential)
	var requested *tier.Tier
	if req.RequestedTier != nil {
		t, err := tier.Normalize(*req.RequestedTier)
		if err != nil {
			return Result{Err: r.fail(types.ErrTierInvalid, "invalid llm tier", map[string]string{
				"requested_tier":  *req.RequestedTier,
				"authorized_tier": authorized.String(),
			}, nil)}
		}
		if tier.IsForbidden(t, authorized) {
			return Result{Err: r.fail(types.ErrTierForbidden, "requested llm tier exceeds authorized tier", map[string]string{
				"requested_tier":  t.String(),
				"authorized_tier": authorized.String(),
			}, nil)}
		}
		requested = &t
	}
	effective := tier.Effective(requested, authorized)
	tenantID := security.DeriveTenantID(req.Credential)
	userID := req.UserExternalID
	if userID == "" {
		userID = req.Metadata["munay_user_id"]
	}
	meta := session.SanitizeMetadata(req.Metadata)

	r.span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("llm.tier", effective.String()),
	)
	ctx = types.WithTenantID(ctx, tenantID)
	if userID != "" {
		ctx = types.WithUserID(ctx, userID)
	}

	// 语音转文本
	r.enter(StateTranscribing)
	stt, err := r.o.stt.Transcribe(ctx, &speech.STTRequest{
		Audio:    req.Audio,
		MIMEType: req.MIMEType,
		Locale:   req.Locale,
	})
	if err == nil && stt == nil {
		err = fmt.Errorf("%s returned no result", r.o.stt.Name())
	}
	if err != nil {
		r.o.recorder.RecordProviderRequest("stt", r.o.stt.Name(), "error", time.Since(r.entered))
		return Result{Err: r.stageError(types.ErrSTT, "stt", r.o.stt.Name(), "speech-to-text failed", err)}
	}
	r.o.recorder.RecordProviderRequest("stt", stt.Provider, "success", stt.Latency)

	// 文本生成
	r.enter(StateGenerating)
	gen, err := r.o.llm.Generate(ctx, &reply.Request{
		Transcript:     stt.Text,
		Tier:           effective,
		UserExternalID: userID,
		Locale:         req.Locale,
		Metadata:       meta,
	})
	if err == nil && gen == nil {
		err = fmt.Errorf("%s returned no result", r.o.llm.Name())
	}
	if err != nil {
		r.o.recorder.RecordProviderRequest("llm", r.o.llm.Name(), "error", time.Since(r.entered))
		return Result{Err: r.stageError(types.ErrLLM, "llm", r.o.llm.Name(), "text generation failed", err)}
	}
	r.o.recorder.RecordProviderRequest("llm", gen.Provider, "success", gen.Latency)
	if gen.PromptTokens > 0 || gen.CompletionTokens > 0 {
		r.o.recorder.RecordLLMTokens(gen.Provider, gen.Model, gen.PromptTokens, gen.CompletionTokens)
	}

	// 语音合成
	r.enter(StateSynthesizing)
	tts, err := r.o.tts.Synthesize(ctx, &speech.TTSRequest{
		Text:   gen.Text,
		Locale: req.Locale,
	})
	if err == nil && tts == nil {
		err = fmt.Errorf("%s returned no result", r.o.tts.Name())
	}
	if err != nil {
		r.o.recorder.RecordProviderRequest("tts", r.o.tts.Name(), "error", time.Since(r.entered))
		return Result{Err: r.stageError(types.ErrTTS, "tts", r.o.tts.Name(), "speech synthesis failed", err)}
	}
	r.o.recorder.RecordProviderRequest("tts", tts.Provider, "success", tts.Latency)

	// 持久化
	r.enter(StatePersisting)
	usage := buildUsage(stt, gen, tts)
	stored := r.o.sessions.Create(ctx, session.Session{
		ID:              uuid.New().String(),
		CorrelationID:   corrID,
		TenantID:        tenantID,
		UserExternalID:  userID,
		Status:          session.StatusProcessed,
		RequestMIMEType: req.MIMEType,
		Transcript:      stt.Text,
		ReplyText:       gen.Text,
		TTSAvailable:    len(tts.AudioData) > 0 || tts.AudioURL != "",
		TTSStorageRef:   tts.AudioURL,
		Usage:           usage,
		Metadata:        meta,
	})

	// 组装响应
	r.enter(StateResponding)
	r.span.SetStatus(codes.Ok, "")
	r.logger.Info("audio processed",
		zap.String("tenant_id", tenantID),
		zap.String("session_id", stored.ID),
		zap.String("tier", effective.String()),
		zap.Int64("total_ms", usage.TotalMs),
		zap.String("provider_stt", usage.ProviderSTT),
		zap.String("provider_llm", usage.ProviderLLM),
		zap.String("provider_tts", usage.ProviderTTS),
	)
	r.o.recorder.RecordPipelineStage(string(StateResponding), time.Since(r.entered))

	return Result{Response: &Response{
		Transcript:    stt.Text,
		ReplyText:     gen.Text,
		TTSURL:        tts.AudioURL,
		Usage:         usage,
		SessionID:     stored.ID,
		CorrelationID: corrID,
		Meta:          meta,
		TenantID:      tenantID,
		EffectiveTier: effective,
	}}
}

// buildUsage 从三个固定结果结构汇总用量
func buildUsage(stt *speech.STTResponse, gen *reply.Response, tts *speech.TTSResponse) Usage {
	u := Usage{
		InputSeconds:  stt.InputSeconds,
		OutputSeconds: tts.OutputSeconds,
		STTMs:         stt.Latency.Milliseconds(),
		LLMMs:         gen.Latency.Milliseconds(),
		TTSMs:         tts.Latency.Milliseconds(),
		ProviderSTT:   stt.Provider,
		ProviderLLM:   gen.Provider,
		ProviderTTS:   tts.Provider,
	}
	u.TotalMs = u.STTMs + u.LLMMs + u.TTSMs
	return u
}
