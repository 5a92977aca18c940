// Package fallback 实现主/备供应商降级策略，由 speech 与 reply 的装饰器共用。
package fallback

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/config"
	"github.com/BaSui01/voiceflow/llm/circuitbreaker"
	"github.com/BaSui01/voiceflow/types"
)

// Recorder 记录降级事件（internal/metrics.Collector 实现该接口）
type Recorder interface {
	RecordProviderFallback(stage, primary, secondary string)
}

// BreakerRecorder 可选：Recorder 同时实现时上报主供应商熔断状态
type BreakerRecorder interface {
	SetProviderBreakerState(stage, provider string, level float64)
}

// Options 降级策略的可选依赖
type Options struct {
	// Breaker 为 nil 时不对主供应商做熔断
	Breaker  *circuitbreaker.Config
	Logger   *zap.Logger
	Recorder Recorder
}

// Policy 一个能力阶段（stt / llm / tts）的降级策略
type Policy struct {
	stage     string
	primary   string
	secondary string
	breaker   *circuitbreaker.Breaker
	logger    *zap.Logger
	recorder  Recorder
}

// NewPolicy 创建降级策略。secondary 为空表示没有备用供应商。
func NewPolicy(stage, primary, secondary string, opts Options) *Policy {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Policy{
		stage:     stage,
		primary:   primary,
		secondary: secondary,
		logger: logger.With(
			zap.String("component", "provider_fallback"),
			zap.String("stage", stage),
			zap.String("primary", primary),
		),
		recorder: opts.Recorder,
	}
	if opts.Breaker != nil {
		cfg := *opts.Breaker
		cfg.Name = stage + ":" + primary
		if br, ok := opts.Recorder.(BreakerRecorder); ok {
			next := cfg.OnStateChange
			cfg.OnStateChange = func(name string, from, to circuitbreaker.State) {
				br.SetProviderBreakerState(stage, primary, to.Level())
				if next != nil {
					next(name, from, to)
				}
			}
		}
		p.breaker = circuitbreaker.New(cfg, logger)
	}
	return p
}

// Tag 返回降级后的供应商标识 "<primary>|<secondary>"
func (p *Policy) Tag(secondaryID string) string {
	return p.primary + "|" + secondaryID
}

// BreakerState 返回主供应商熔断器状态，未启用熔断时恒为 Closed
func (p *Policy) BreakerState() circuitbreaker.State {
	if p.breaker == nil {
		return circuitbreaker.StateClosed
	}
	return p.breaker.State()
}

// Do 先调用主供应商，失败（或熔断打开）时同步调用备用供应商。
// degraded 为 true 表示结果来自备用供应商。没有备用供应商时原错误原样返回。
func Do[T any](
	ctx context.Context,
	p *Policy,
	fields []zap.Field,
	primary func(ctx context.Context) (T, error),
	secondary func(ctx context.Context) (T, error),
) (result T, degraded bool, err error) {
	if p.breaker != nil {
		result, err = circuitbreaker.Execute(ctx, p.breaker, primary)
	} else {
		result, err = primary(ctx)
	}
	if err == nil {
		return result, false, nil
	}

	if secondary == nil {
		return result, false, err
	}
	// 调用方已取消，不再尝试备用供应商
	if ctx.Err() != nil {
		return result, false, err
	}

	p.logger.Warn("primary provider failed, using secondary",
		append(append(fields, requestFields(ctx)...),
			zap.String("secondary", p.secondary),
			zap.Bool("breaker_open", circuitbreaker.IsOpen(err)),
			zap.Error(err),
		)...,
	)
	if p.recorder != nil {
		p.recorder.RecordProviderFallback(p.stage, p.primary, p.secondary)
	}

	result, err = secondary(ctx)
	if err != nil {
		return result, true, err
	}
	return result, true, nil
}

// requestFields 从 ctx 取出请求级标识用于日志
func requestFields(ctx context.Context) []zap.Field {
	id := types.Identity(ctx)
	var fields []zap.Field
	if id.CorrelationID != "" {
		fields = append(fields, zap.String("corr_id", id.CorrelationID))
	}
	if id.TenantID != "" {
		fields = append(fields, zap.String("tenant_id", id.TenantID))
	}
	if id.UserID != "" {
		fields = append(fields, zap.String("user_id", id.UserID))
	}
	return fields
}

// BreakerFromConfig 将配置转换为熔断器配置，Threshold <= 0 表示不启用熔断
func BreakerFromConfig(cfg config.BreakerConfig) *circuitbreaker.Config {
	if cfg.Threshold <= 0 {
		return nil
	}
	return &circuitbreaker.Config{
		Threshold:    cfg.Threshold,
		CallTimeout:  cfg.CallTimeout,
		ResetTimeout: cfg.ResetTimeout,
	}
}
