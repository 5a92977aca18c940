package pipeline

import (
	"fmt"

	"github.com/BaSui01/voiceflow/llm/tier"
	"github.com/BaSui01/voiceflow/session"
	"github.com/BaSui01/voiceflow/types"
)

// State 请求处理状态
type State string

const (
	StateValidating   State = "validating"
	StateTranscribing State = "transcribing"
	StateGenerating   State = "generating"
	StateSynthesizing State = "synthesizing"
	StatePersisting   State = "persisting"
	StateResponding   State = "responding"
	StateFailed       State = "failed"
)

// RequestContext 一次编排的输入，构造后不再修改
type RequestContext struct {
	// Credential 原始租户凭证（API Key），只用于派生租户 ID 与授权等级
	Credential     string
	Audio          []byte
	MIMEType       string
	Locale         string
	UserExternalID string
	Metadata       map[string]string
	// RequestedTier 为 nil 表示客户端未请求等级
	RequestedTier *string
	CorrelationID string
}

// Usage 与会话中记录的用量结构一致
type Usage = session.Usage

// Response 成功结果
type Response struct {
	Transcript    string            `json:"transcript"`
	ReplyText     string            `json:"reply_text"`
	TTSURL        string            `json:"tts_url"`
	Usage         Usage             `json:"usage"`
	SessionID     string            `json:"session_id"`
	CorrelationID string            `json:"corr_id"`
	Meta          map[string]string `json:"meta"`

	TenantID      string    `json:"-"`
	EffectiveTier tier.Tier `json:"-"`
}

// PipelineError 失败结果
type PipelineError struct {
	Code    types.ErrorCode   `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	// State 失败发生时所处的状态
	State State `json:"-"`
	Cause error `json:"-"`
}

// Error 实现 error 接口
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Status 返回错误码对应的 HTTP 状态码
func (e *PipelineError) Status() int {
	return types.HTTPStatusFor(e.Code)
}

// Result 编排结果：Response 与 Err 有且仅有一个非空
type Result struct {
	Response *Response
	Err      *PipelineError
}

// OK 是否成功
func (r Result) OK() bool {
	return r.Err == nil
}
