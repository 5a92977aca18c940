package speech

import (
	"context"
	"time"
)

// ============================================================
// Stub 供应商（本地开发、测试以及厂商故障时的备用）
// ============================================================

// StubSTTProvider 返回固定转写结果，不访问网络.
type StubSTTProvider struct {
	Text         string
	Latency      time.Duration
	InputSeconds float64
}

var _ STTProvider = (*StubSTTProvider)(nil)

// NewStubSTTProvider 创建默认 stub STT 供应商.
func NewStubSTTProvider() *StubSTTProvider {
	return &StubSTTProvider{
		Text:         "stub transcript",
		Latency:      100 * time.Millisecond,
		InputSeconds: 1.0,
	}
}

func (p *StubSTTProvider) Name() string { return "stub-stt" }

// Transcribe 返回固定结果.
func (p *StubSTTProvider) Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := &STTResponse{
		Provider:     p.Name(),
		Model:        "stub",
		Text:         p.Text,
		Latency:      p.Latency,
		InputSeconds: p.InputSeconds,
		CreatedAt:    time.Now(),
	}
	if req != nil {
		resp.Language = languageFromLocale(req.Locale)
	}
	return resp, nil
}

// StubTTSProvider 返回固定音频引用，不访问网络.
type StubTTSProvider struct {
	AudioURL      string
	AudioData     []byte
	MIMEType      string
	Latency       time.Duration
	OutputSeconds float64
}

var _ TTSProvider = (*StubTTSProvider)(nil)

// NewStubTTSProvider 创建默认 stub TTS 供应商.
func NewStubTTSProvider() *StubTTSProvider {
	return &StubTTSProvider{
		AudioURL:      "https://example.com/audio/stub.wav",
		AudioData:     []byte("stub-bytes"),
		MIMEType:      "audio/wav",
		Latency:       150 * time.Millisecond,
		OutputSeconds: 1.5,
	}
}

func (p *StubTTSProvider) Name() string { return "stub-tts" }

// Synthesize 返回固定结果.
func (p *StubTTSProvider) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := &TTSResponse{
		Provider:      p.Name(),
		Model:         "stub",
		AudioData:     p.AudioData,
		MIMEType:      p.MIMEType,
		AudioURL:      p.AudioURL,
		Latency:       p.Latency,
		OutputSeconds: p.OutputSeconds,
		CreatedAt:     time.Now(),
	}
	if req != nil {
		resp.CharCount = len(req.Text)
	}
	return resp, nil
}
