// Package circuitbreaker 为主供应商调用提供熔断保护。
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/types"
)

// =============================================================================
// 🔌 状态与配置
// =============================================================================

// State 熔断器状态，取值直接用作指标标签
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Level 返回状态的数值表示（closed=0, half_open=1, open=2），用于 gauge
func (s State) Level() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

// Config 熔断器配置
type Config struct {
	// Name 被保护的目标，形如 "stt:openai"
	Name string

	// Threshold 连续失败多少次后打开
	Threshold int

	// CallTimeout 单次调用超时，<= 0 时不额外限制
	CallTimeout time.Duration

	// ResetTimeout 打开后多久进入半开
	ResetTimeout time.Duration

	// HalfOpenMaxCalls 半开状态下放行的试探请求数
	HalfOpenMaxCalls int

	// OnStateChange 状态变更回调，在持锁之外同步调用
	OnStateChange func(name string, from, to State)

	// Now 测试注入的时钟
	Now func() time.Time
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Threshold:        5,
		CallTimeout:      30 * time.Second,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Counts 熔断器计数快照
type Counts struct {
	Requests             int
	TotalFailures        int
	ConsecutiveFailures  int
	Rejected             int
	ConsecutiveSuccesses int
}

// =============================================================================
// ⚡ Breaker
// =============================================================================

// Breaker 连续失败计数熔断器。
// 客户端错误（请求无效、鉴权、等级）与调用方取消不计为失败。
type Breaker struct {
	cfg    Config
	logger *zap.Logger

	mu            sync.Mutex
	state         State
	counts        Counts
	openedAt      time.Time
	halfOpenCalls int
}

// New 创建熔断器，非法参数回落到默认值
func New(cfg Config, logger *zap.Logger) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Breaker{
		cfg: cfg,
		logger: logger.With(
			zap.String("component", "circuit_breaker"),
			zap.String("target", cfg.Name),
		),
		state: StateClosed,
	}
}

// Name 返回被保护目标的名称
func (b *Breaker) Name() string {
	return b.cfg.Name
}

// State 返回当前状态；打开超过 ResetTimeout 时报告 half_open
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Counts 返回计数快照
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset 手动恢复到 closed
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.counts = Counts{}
	b.halfOpenCalls = 0
	b.mu.Unlock()

	b.logger.Info("circuit breaker reset", zap.String("from_state", string(from)))
	b.notify(from, StateClosed)
}

// Execute 经熔断器执行 fn。熔断打开时不调用 fn，直接返回 ErrCircuitOpen。
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}

	callCtx := ctx
	if b.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
	}

	result, err := fn(callCtx)
	switch {
	case err == nil:
		b.record(true)
		return result, nil
	case ctx.Err() != nil:
		// 调用方取消，不归咎于供应商
		b.release()
		return zero, err
	case callCtx.Err() != nil:
		b.record(false)
		return zero, types.NewError(types.ErrProviderTimeout,
			fmt.Sprintf("%s timed out after %s", b.cfg.Name, b.cfg.CallTimeout)).
			WithCause(err).
			WithRetryable(true)
	case isClientError(err):
		b.record(true)
		return zero, err
	default:
		b.record(false)
		return zero, err
	}
}

// =============================================================================
// 🔒 状态机
// =============================================================================

func (b *Breaker) admit() error {
	b.mu.Lock()
	from := b.state
	to := from

	switch b.state {
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.counts.Rejected++
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.halfOpenCalls = 0
		to = StateHalfOpen
		fallthrough
	case StateHalfOpen:
		if b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			b.counts.Rejected++
			b.mu.Unlock()
			b.notify(from, to)
			return ErrTooManyHalfOpenCalls
		}
		b.halfOpenCalls++
	}
	b.counts.Requests++
	b.mu.Unlock()

	b.notify(from, to)
	return nil
}

// release 归还半开名额，不改变计数
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.halfOpenCalls > 0 {
		b.halfOpenCalls--
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	from := b.state
	if success {
		b.counts.ConsecutiveFailures = 0
		b.counts.ConsecutiveSuccesses++
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.halfOpenCalls = 0
		}
	} else {
		b.counts.TotalFailures++
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
		if b.state == StateHalfOpen || b.counts.ConsecutiveFailures >= b.cfg.Threshold {
			b.state = StateOpen
			b.openedAt = b.cfg.Now()
			b.halfOpenCalls = 0
		}
	}
	to := b.state
	failures := b.counts.ConsecutiveFailures
	b.mu.Unlock()

	if from == to {
		return
	}
	switch to {
	case StateOpen:
		b.logger.Warn("circuit breaker opened",
			zap.String("from_state", string(from)),
			zap.Int("consecutive_failures", failures),
			zap.Int("threshold", b.cfg.Threshold),
		)
	case StateClosed:
		b.logger.Info("circuit breaker closed after successful probe")
	}
	b.notify(from, to)
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// isClientError 请求本身有问题，与供应商健康无关
func isClientError(err error) bool {
	switch types.GetErrorCode(err) {
	case types.ErrBadRequest, types.ErrUnsupportedMediaType, types.ErrUnauthorized,
		types.ErrAccessDenied, types.ErrTierInvalid, types.ErrTierForbidden:
		return true
	}
	return false
}

// IsOpen 报告错误是否为熔断拒绝
func IsOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyHalfOpenCalls)
}

// 错误定义
var (
	ErrCircuitOpen          = errors.New("circuit breaker is open")
	ErrTooManyHalfOpenCalls = errors.New("circuit breaker half-open probe in flight")
)
