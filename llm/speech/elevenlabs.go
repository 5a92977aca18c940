package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/voiceflow/internal/tlsutil"
	"github.com/BaSui01/voiceflow/types"
)

// ElevenLabsProvider 使用 ElevenLabs API 执行 TTS.
type ElevenLabsProvider struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

var _ TTSProvider = (*ElevenLabsProvider)(nil)

// NewElevenLabsProvider 创建新的 ElevenLabs TTS 供应商.
func NewElevenLabsProvider(cfg ElevenLabsConfig) *ElevenLabsProvider {
	cfg = cfg.withDefaults()

	return &ElevenLabsProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
	}
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

type elevenLabsTTSRequest struct {
	Text         string `json:"text"`
	ModelID      string `json:"model_id"`
	LanguageCode string `json:"language_code,omitempty"`
}

// elevenLabsFormat 默认输出格式: mp3, 44.1kHz, 128kbps
const (
	elevenLabsFormat = "mp3_44100_128"
	elevenLabsKbps   = 128
)

// Synthesize 使用 ElevenLabs 将文本转换为语音.
func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, types.NewError(types.ErrBadRequest, "text is required").WithProvider(p.Name())
	}
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	voiceID := req.Voice
	if voiceID == "" {
		voiceID = p.cfg.VoiceID
	}

	payload, _ := json.Marshal(elevenLabsTTSRequest{
		Text:         req.Text,
		ModelID:      model,
		LanguageCode: languageFromLocale(req.Locale),
	})
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(voiceID), elevenLabsFormat)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, transportError(types.ErrTTS, p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(types.ErrTTS, p.Name(), resp.StatusCode, errBody)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(types.ErrTTS, p.Name(), err)
	}

	return &TTSResponse{
		Provider:      p.Name(),
		Model:         model,
		AudioData:     audio,
		MIMEType:      "audio/mpeg",
		Latency:       time.Since(start),
		OutputSeconds: estimateMP3Seconds(len(audio), elevenLabsKbps),
		CharCount:     len(req.Text),
		CreatedAt:     time.Now(),
	}, nil
}
