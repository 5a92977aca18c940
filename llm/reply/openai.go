package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/internal/tlsutil"
	"github.com/BaSui01/voiceflow/llm/tier"
	"github.com/BaSui01/voiceflow/types"
)

// DefaultSystemPrompt 未配置时使用的系统提示词
const DefaultSystemPrompt = "Eres el núcleo neutral del asistente de voz. Responde claro y breve."

// OpenAIConfig OpenAI 兼容 chat completions 配置
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	ModelFreemium string
	// ModelPremium 为空时回退到 ModelFreemium
	ModelPremium string
	SystemPrompt string
	Timeout      time.Duration
}

// OpenAIGenerator 通过 /v1/chat/completions 生成回复
type OpenAIGenerator struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator 创建 OpenAI 回复生成器
func NewOpenAIGenerator(cfg OpenAIConfig, logger *zap.Logger) *OpenAIGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.ModelFreemium == "" {
		cfg.ModelFreemium = "gpt-4o-mini"
	}
	if cfg.ModelPremium == "" {
		cfg.ModelPremium = cfg.ModelFreemium
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIGenerator{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "openai_llm")),
	}
}

func (g *OpenAIGenerator) Name() string { return "openai-llm" }

// ModelFor 返回等级对应的模型
func (g *OpenAIGenerator) ModelFor(t tier.Tier) string {
	if t == tier.Premium {
		return g.cfg.ModelPremium
	}
	return g.cfg.ModelFreemium
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	User     string        `json:"user,omitempty"`
}

type chatResponse struct {
	Created int64 `json:"created"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate 实现 Generator
func (g *OpenAIGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, types.NewError(types.ErrBadRequest, "request is required").WithProvider(g.Name())
	}
	start := time.Now()
	model := g.ModelFor(req.Tier)

	payload, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: g.cfg.SystemPrompt},
			{Role: "user", Content: req.Transcript},
		},
		User: req.UserExternalID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(g.cfg.BaseURL, "/")+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		code := types.ErrLLM
		if types.IsTimeout(err) {
			code = types.ErrProviderTimeout
		}
		return nil, types.NewError(code, "chat completion request failed").
			WithProvider(g.Name()).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), g.Name())
	}

	var cResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return nil, types.NewError(types.ErrLLM, "failed to decode chat completion").
			WithProvider(g.Name()).WithCause(err)
	}
	if len(cResp.Choices) == 0 {
		return nil, types.NewError(types.ErrLLM, "chat completion returned no choices").WithProvider(g.Name())
	}

	latency := time.Since(start)
	g.logger.Debug("reply generated",
		zap.String("tier", req.Tier.String()),
		zap.String("model", model),
		zap.Duration("latency", latency),
	)

	return &Response{
		Text:             strings.TrimSpace(cResp.Choices[0].Message.Content),
		Provider:         g.Name(),
		Model:            model,
		Latency:          latency,
		PromptTokens:     cResp.Usage.PromptTokens,
		CompletionTokens: cResp.Usage.CompletionTokens,
		CreatedAt:        time.Now(),
	}, nil
}

// mapHTTPError 将 HTTP 状态码映射为 types.Error
func mapHTTPError(status int, msg, provider string) *types.Error {
	code := types.ErrLLM
	if status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout {
		code = types.ErrProviderTimeout
	}
	return types.NewError(code, msg).
		WithProvider(provider).
		WithDetail("upstream_status", fmt.Sprint(status)).
		WithRetryable(status == http.StatusTooManyRequests || status >= 500)
}

// readErrorMessage 读取响应体中的错误消息
// 尝试解析 JSON 错误响应，失败则回退到原始文本
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(data)
}
