package speech

import (
	"fmt"
	"strings"

	"github.com/BaSui01/voiceflow/config"
	"github.com/BaSui01/voiceflow/llm/fallback"
)

// NewSTTFromConfig 按配置构建 STT 供应商。
// 厂商供应商在 FallbackToStub 开启时包装 stub 作为备用。
func NewSTTFromConfig(cfg config.ProvidersConfig, opts fallback.Options) (STTProvider, error) {
	var primary STTProvider
	switch strings.ToLower(cfg.STT) {
	case "", "stub":
		return NewStubSTTProvider(), nil
	case "openai":
		primary = NewOpenAISTTProvider(OpenAISTTConfigFrom(cfg.OpenAI))
	case "deepgram":
		primary = NewDeepgramProvider(DeepgramConfigFrom(cfg.Deepgram))
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.STT)
	}

	var secondary STTProvider
	if cfg.FallbackToStub {
		secondary = NewStubSTTProvider()
	}
	opts.Breaker = fallback.BreakerFromConfig(cfg.Breaker)
	return NewSTTFallback(primary, secondary, opts), nil
}

// NewTTSFromConfig 按配置构建 TTS 供应商.
func NewTTSFromConfig(cfg config.ProvidersConfig, opts fallback.Options) (TTSProvider, error) {
	var primary TTSProvider
	switch strings.ToLower(cfg.TTS) {
	case "", "stub":
		return NewStubTTSProvider(), nil
	case "openai":
		primary = NewOpenAITTSProvider(OpenAITTSConfigFrom(cfg.OpenAI))
	case "elevenlabs":
		primary = NewElevenLabsProvider(ElevenLabsConfigFrom(cfg.ElevenLabs))
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.TTS)
	}

	var secondary TTSProvider
	if cfg.FallbackToStub {
		secondary = NewStubTTSProvider()
	}
	opts.Breaker = fallback.BreakerFromConfig(cfg.Breaker)
	return NewTTSFallback(primary, secondary, opts), nil
}
