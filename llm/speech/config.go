package speech

import (
	"time"

	"github.com/BaSui01/voiceflow/config"
)

const defaultVendorTimeout = 30 * time.Second

// OpenAITTSConfig OpenAI TTS（tts-1 / tts-1-hd）
type OpenAITTSConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string // alloy, echo, fable, onyx, nova, shimmer
	Timeout time.Duration
}

// OpenAISTTConfig OpenAI Whisper STT
type OpenAISTTConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ElevenLabsConfig ElevenLabs TTS
type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	VoiceID string
	Timeout time.Duration
}

// DeepgramConfig Deepgram 预录音频 STT
type DeepgramConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// =============================================================================
// 从全局配置构建
// =============================================================================

// OpenAITTSConfigFrom 取 providers.openai 中的 TTS 字段
func OpenAITTSConfigFrom(cfg config.OpenAIConfig) OpenAITTSConfig {
	return OpenAITTSConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.TTSModel,
		Voice:   cfg.TTSVoice,
		Timeout: cfg.Timeout,
	}
}

// OpenAISTTConfigFrom 取 providers.openai 中的 STT 字段
func OpenAISTTConfigFrom(cfg config.OpenAIConfig) OpenAISTTConfig {
	return OpenAISTTConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.STTModel,
		Timeout: cfg.Timeout,
	}
}

// ElevenLabsConfigFrom providers.elevenlabs
func ElevenLabsConfigFrom(cfg config.VendorConfig) ElevenLabsConfig {
	return ElevenLabsConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		VoiceID: cfg.Voice,
		Timeout: cfg.Timeout,
	}
}

// DeepgramConfigFrom providers.deepgram
func DeepgramConfigFrom(cfg config.VendorConfig) DeepgramConfig {
	return DeepgramConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
}

// =============================================================================
// 默认值
// =============================================================================

func (c OpenAITTSConfig) withDefaults() OpenAITTSConfig {
	c.BaseURL = orDefault(c.BaseURL, "https://api.openai.com")
	c.Model = orDefault(c.Model, "tts-1")
	c.Voice = orDefault(c.Voice, "alloy")
	c.Timeout = timeoutOrDefault(c.Timeout)
	return c
}

func (c OpenAISTTConfig) withDefaults() OpenAISTTConfig {
	c.BaseURL = orDefault(c.BaseURL, "https://api.openai.com")
	c.Model = orDefault(c.Model, "whisper-1")
	c.Timeout = timeoutOrDefault(c.Timeout)
	return c
}

func (c ElevenLabsConfig) withDefaults() ElevenLabsConfig {
	c.BaseURL = orDefault(c.BaseURL, "https://api.elevenlabs.io")
	c.Model = orDefault(c.Model, "eleven_multilingual_v2")
	c.VoiceID = orDefault(c.VoiceID, "21m00Tcm4TlvDq8ikWAM")
	c.Timeout = timeoutOrDefault(c.Timeout)
	return c
}

func (c DeepgramConfig) withDefaults() DeepgramConfig {
	c.BaseURL = orDefault(c.BaseURL, "https://api.deepgram.com")
	c.Model = orDefault(c.Model, "nova-2")
	c.Timeout = timeoutOrDefault(c.Timeout)
	return c
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultVendorTimeout
	}
	return d
}
