package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/voiceflow/internal/tlsutil"
	"github.com/BaSui01/voiceflow/types"
)

// OpenAITTSProvider implements TTS using OpenAI's API.
type OpenAITTSProvider struct {
	cfg    OpenAITTSConfig
	client *http.Client
}

var _ TTSProvider = (*OpenAITTSProvider)(nil)

// NewOpenAITTSProvider creates a new OpenAI TTS provider.
func NewOpenAITTSProvider(cfg OpenAITTSConfig) *OpenAITTSProvider {
	cfg = cfg.withDefaults()

	return &OpenAITTSProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
	}
}

func (p *OpenAITTSProvider) Name() string { return "openai-tts" }

type openAITTSRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// openAIMP3Kbps is the bitrate of OpenAI's mp3 output, used to estimate duration.
const openAIMP3Kbps = 160

// Synthesize converts text to speech. The audio body is buffered so callers
// get a self-contained result.
func (p *OpenAITTSProvider) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error) {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, types.NewError(types.ErrBadRequest, "text is required").WithProvider(p.Name())
	}
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	voice := req.Voice
	if voice == "" {
		voice = p.cfg.Voice
	}
	format := req.ResponseFormat
	if format == "" {
		format = "mp3"
	}

	payload, _ := json.Marshal(openAITTSRequest{
		Model:          model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: format,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/audio/speech",
		bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

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

	out := &TTSResponse{
		Provider:  p.Name(),
		Model:     model,
		AudioData: audio,
		MIMEType:  mimeTypeForFormat(format),
		Latency:   time.Since(start),
		CharCount: len(req.Text),
		CreatedAt: time.Now(),
	}
	if format == "mp3" {
		out.OutputSeconds = estimateMP3Seconds(len(audio), openAIMP3Kbps)
	}
	return out, nil
}
