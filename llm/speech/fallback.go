package speech

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/llm/fallback"
)

// STTFallback 在主 STT 供应商失败时切换到备用供应商，
// 结果的 Provider 被改写为 "<primary>|<secondary>".
type STTFallback struct {
	primary   STTProvider
	secondary STTProvider
	policy    *fallback.Policy
}

var _ STTProvider = (*STTFallback)(nil)

// NewSTTFallback 创建 STT 降级装饰器，secondary 可为 nil.
func NewSTTFallback(primary, secondary STTProvider, opts fallback.Options) *STTFallback {
	secondaryName := ""
	if secondary != nil {
		secondaryName = secondary.Name()
	}
	return &STTFallback{
		primary:   primary,
		secondary: secondary,
		policy:    fallback.NewPolicy("stt", primary.Name(), secondaryName, opts),
	}
}

func (f *STTFallback) Name() string { return f.primary.Name() }

// Transcribe 实现 STTProvider.
func (f *STTFallback) Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error) {
	var secondary func(context.Context) (*STTResponse, error)
	if f.secondary != nil {
		secondary = func(ctx context.Context) (*STTResponse, error) {
			return f.secondary.Transcribe(ctx, req)
		}
	}

	resp, degraded, err := fallback.Do(ctx, f.policy,
		[]zap.Field{zap.String("locale", req.Locale)},
		func(ctx context.Context) (*STTResponse, error) {
			return f.primary.Transcribe(ctx, req)
		},
		secondary,
	)
	if err != nil {
		return nil, err
	}
	if degraded {
		out := *resp
		out.Provider = f.policy.Tag(resp.Provider)
		return &out, nil
	}
	return resp, nil
}

// TTSFallback 在主 TTS 供应商失败时切换到备用供应商.
type TTSFallback struct {
	primary   TTSProvider
	secondary TTSProvider
	policy    *fallback.Policy
}

var _ TTSProvider = (*TTSFallback)(nil)

// NewTTSFallback 创建 TTS 降级装饰器，secondary 可为 nil.
func NewTTSFallback(primary, secondary TTSProvider, opts fallback.Options) *TTSFallback {
	secondaryName := ""
	if secondary != nil {
		secondaryName = secondary.Name()
	}
	return &TTSFallback{
		primary:   primary,
		secondary: secondary,
		policy:    fallback.NewPolicy("tts", primary.Name(), secondaryName, opts),
	}
}

func (f *TTSFallback) Name() string { return f.primary.Name() }

// Synthesize 实现 TTSProvider.
func (f *TTSFallback) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	var secondary func(context.Context) (*TTSResponse, error)
	if f.secondary != nil {
		secondary = func(ctx context.Context) (*TTSResponse, error) {
			return f.secondary.Synthesize(ctx, req)
		}
	}

	resp, degraded, err := fallback.Do(ctx, f.policy,
		[]zap.Field{zap.String("locale", req.Locale), zap.String("voice", req.Voice)},
		func(ctx context.Context) (*TTSResponse, error) {
			return f.primary.Synthesize(ctx, req)
		},
		secondary,
	)
	if err != nil {
		return nil, err
	}
	if degraded {
		out := *resp
		out.Provider = f.policy.Tag(resp.Provider)
		return &out, nil
	}
	return resp, nil
}
