package reply

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/llm/fallback"
)

// GeneratorFallback 主生成器失败时切换到备用生成器
type GeneratorFallback struct {
	primary   Generator
	secondary Generator
	policy    *fallback.Policy
}

var _ Generator = (*GeneratorFallback)(nil)

// NewGeneratorFallback 创建降级装饰器，secondary 可为 nil
func NewGeneratorFallback(primary, secondary Generator, opts fallback.Options) *GeneratorFallback {
	secondaryName := ""
	if secondary != nil {
		secondaryName = secondary.Name()
	}
	return &GeneratorFallback{
		primary:   primary,
		secondary: secondary,
		policy:    fallback.NewPolicy("llm", primary.Name(), secondaryName, opts),
	}
}

func (f *GeneratorFallback) Name() string { return f.primary.Name() }

// Generate 实现 Generator
func (f *GeneratorFallback) Generate(ctx context.Context, req *Request) (*Response, error) {
	var secondary func(context.Context) (*Response, error)
	if f.secondary != nil {
		secondary = func(ctx context.Context) (*Response, error) {
			return f.secondary.Generate(ctx, req)
		}
	}

	resp, degraded, err := fallback.Do(ctx, f.policy,
		[]zap.Field{zap.String("tier", req.Tier.String())},
		func(ctx context.Context) (*Response, error) {
			return f.primary.Generate(ctx, req)
		},
		secondary,
	)
	if err != nil {
		return nil, err
	}
	if degraded {
		out := *resp
		out.Provider = f.policy.Tag(resp.Provider)
		return &out, nil
	}
	return resp, nil
}
