package reply

import (
	"context"
	"time"
)

// StubGenerator 返回固定回复，不访问网络
type StubGenerator struct {
	Text    string
	Latency time.Duration
}

var _ Generator = (*StubGenerator)(nil)

// NewStubGenerator 创建默认 stub 生成器
func NewStubGenerator() *StubGenerator {
	return &StubGenerator{
		Text:    "stub reply text",
		Latency: 200 * time.Millisecond,
	}
}

func (g *StubGenerator) Name() string { return "stub-llm" }

// Generate 返回固定结果
func (g *StubGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Response{
		Text:      g.Text,
		Provider:  g.Name(),
		Model:     "stub",
		Latency:   g.Latency,
		CreatedAt: time.Now(),
	}, nil
}
