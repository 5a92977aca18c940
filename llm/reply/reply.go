// Package reply 定义文本生成端口：根据转写文本生成回复。
package reply

import (
	"context"
	"time"

	"github.com/BaSui01/voiceflow/llm/tier"
)

// Request 文本生成请求
type Request struct {
	Transcript string `json:"transcript"`
	// Tier 为有效等级（请求等级与授权等级取较低者）
	Tier           tier.Tier         `json:"tier"`
	UserExternalID string            `json:"user_external_id,omitempty"`
	Locale         string            `json:"locale,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Response 每个 Generator 返回的固定结果结构
type Response struct {
	Text             string        `json:"text"`
	Provider         string        `json:"provider"`
	Model            string        `json:"model,omitempty"`
	Latency          time.Duration `json:"latency"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Generator 文本生成接口
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	Name() string
}
