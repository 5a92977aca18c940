// 软件包语音提供统一的TTS和STT供应商接口.
package speech

import (
	"context"
	"time"
)

// ============================================================
// 语音对文本( STT)
// ============================================================

// STTRequest 语音转文本请求.
type STTRequest struct {
	Audio    []byte            `json:"-"`
	MIMEType string            `json:"mime_type,omitempty"`
	Model    string            `json:"model,omitempty"`
	Locale   string            `json:"locale,omitempty"` // es-CO, en-US ...
	Metadata map[string]string `json:"metadata,omitempty"`
}

// STTResponse 每个 STT 供应商返回的固定结果结构.
type STTResponse struct {
	Provider     string        `json:"provider"`
	Model        string        `json:"model,omitempty"`
	Text         string        `json:"text"`
	Language     string        `json:"language,omitempty"`
	Latency      time.Duration `json:"latency"`
	InputSeconds float64       `json:"input_seconds"`
	CreatedAt    time.Time     `json:"created_at"`
}

// STTProvider 定义了 STT 提供者接口.
type STTProvider interface {
	// Transcribe 将语音转换为文本.
	Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error)

	// Name 返回提供者名称.
	Name() string
}

// ============================================================
// 文字对语音( TTS)
// ============================================================

// TTSRequest 文本转语音请求.
type TTSRequest struct {
	Text           string            `json:"text"`
	Model          string            `json:"model,omitempty"`
	Voice          string            `json:"voice,omitempty"`
	Locale         string            `json:"locale,omitempty"`
	ResponseFormat string            `json:"response_format,omitempty"` // mp3, opus, aac, flac, wav, pcm
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// TTSResponse 每个 TTS 供应商返回的固定结果结构.
type TTSResponse struct {
	Provider      string        `json:"provider"`
	Model         string        `json:"model,omitempty"`
	AudioData     []byte        `json:"-"`
	MIMEType      string        `json:"mime_type"`
	AudioURL      string        `json:"audio_url,omitempty"`
	Latency       time.Duration `json:"latency"`
	OutputSeconds float64       `json:"output_seconds"`
	CharCount     int           `json:"char_count,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// TTSProvider 定义了 TTS 提供者接口.
type TTSProvider interface {
	// Synthesize 将文本转换为语音.
	Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error)

	// Name 返回提供者名称.
	Name() string
}

// mimeTypeForFormat 输出格式对应的 MIME 类型
func mimeTypeForFormat(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "opus":
		return "audio/opus"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	case "pcm":
		return "audio/pcm"
	default:
		return "audio/mpeg"
	}
}

// estimateMP3Seconds 按比特率估算 mp3 时长（供应商未返回时长时使用）
func estimateMP3Seconds(size int, kbps int) float64 {
	if size <= 0 || kbps <= 0 {
		return 0
	}
	return float64(size*8) / float64(kbps*1000)
}
