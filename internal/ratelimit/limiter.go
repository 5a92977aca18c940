package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/BaSui01/voiceflow/config"
	"github.com/BaSui01/voiceflow/internal/cache"
	"golang.org/x/time/rate"
)

// =============================================================================
// 🚦 限流接口
// =============================================================================

// Decision 一次限流判定
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds 返回 Retry-After 头使用的秒数，至少为 1
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter 按键限流
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Backend 名称
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// New 按配置创建限流器；redis 后端需要 cache 管理器
func New(ctx context.Context, cfg config.RateLimitConfig, redis *cache.Manager) (Limiter, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryLimiter(ctx, cfg.MaxRequests, cfg.Window), nil
	case BackendRedis:
		if redis == nil {
			return nil, fmt.Errorf("rate limit backend %q requires redis", cfg.Backend)
		}
		return NewRedisLimiter(redis, cfg.MaxRequests, cfg.Window), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend: %q", cfg.Backend)
	}
}

// =============================================================================
// 🧠 进程内令牌桶
// =============================================================================

const idleVisitorTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter 每个键一个令牌桶：容量 maxRequests，每 window/maxRequests 补充一个令牌
type MemoryLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewMemoryLimiter 创建进程内限流器，ctx 结束时停止后台清理
func NewMemoryLimiter(ctx context.Context, maxRequests int, window time.Duration) *MemoryLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	l := &MemoryLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(maxRequests)),
		burst:    maxRequests,
		now:      time.Now,
	}
	go l.cleanupLoop(ctx)
	return l
}

// Allow 消耗一个令牌；令牌不足时不消耗并返回需要等待的时间
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	res := v.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return Decision{
		Allowed:   true,
		Remaining: int(v.limiter.TokensAt(now)),
	}, nil
}

func (l *MemoryLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictIdle(l.now())
		}
	}
}

func (l *MemoryLimiter) evictIdle(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > idleVisitorTTL {
			delete(l.visitors, key)
			evicted++
		}
	}
	return evicted
}

// =============================================================================
// 🌐 Redis 固定窗口
// =============================================================================

const redisKeyPrefix = "voiceflow:ratelimit:"

// RedisLimiter 多实例共享的固定窗口限流
type RedisLimiter struct {
	cache       *cache.Manager
	maxRequests int
	window      time.Duration
}

// NewRedisLimiter 创建 Redis 限流器
func NewRedisLimiter(manager *cache.Manager, maxRequests int, window time.Duration) *RedisLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{cache: manager, maxRequests: maxRequests, window: window}
}

// Allow 计数并判断是否超出窗口配额
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, ttl, err := l.cache.IncrWindow(ctx, redisKeyPrefix+key, l.window)
	if err != nil {
		return Decision{}, err
	}
	if count > int64(l.maxRequests) {
		return Decision{Allowed: false, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: l.maxRequests - int(count)}, nil
}
