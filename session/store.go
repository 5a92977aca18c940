package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder 会话存储的指标回调
type Recorder interface {
	RecordSessionWrite()
	RecordSessionRead()
	RecordSessionsPurged(n int)
	SetSessionsCurrent(n int)
	RecordStorageError(operation string)
}

type nopRecorder struct{}

func (nopRecorder) RecordSessionWrite()       {}
func (nopRecorder) RecordSessionRead()        {}
func (nopRecorder) RecordSessionsPurged(int)  {}
func (nopRecorder) SetSessionsCurrent(int)    {}
func (nopRecorder) RecordStorageError(string) {}

// pinger 可选的后端健康检查
type pinger interface {
	Ping(ctx context.Context) error
}

// Options 存储选项
type Options struct {
	Policy    Policy
	Persister Persister // nil 表示仅内存
	Logger    *zap.Logger
	Recorder  Recorder
	Now       func() time.Time
}

// =============================================================================
// 🗃️ 会话存储
// =============================================================================

// Store 按租户隔离、受保留期约束的会话存储
type Store struct {
	mu        sync.Mutex
	items     []Session
	policy    Policy
	persister Persister
	logger    *zap.Logger
	recorder  Recorder
	now       func() time.Time
}

// NewStore 创建存储并从持久化后端加载存活集合。
// 加载失败视为空集合，不会阻止启动。
func NewStore(ctx context.Context, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	s := &Store{
		policy:    opts.Policy,
		persister: opts.Persister,
		logger:    opts.Logger.With(zap.String("component", "session_store")),
		recorder:  opts.Recorder,
		now:       opts.Now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked(ctx)
	if s.policy.PurgeEnabled {
		s.purgeLocked(ctx, s.now())
	}
	s.recorder.SetSessionsCurrent(len(s.items))

	s.logger.Info("session store initialized",
		zap.Duration("retention", s.policy.Window),
		zap.Bool("purge_enabled", s.policy.PurgeEnabled),
		zap.Int("sessions", len(s.items)),
	)
	return s
}

// Policy 返回生效的保留策略
func (s *Store) Policy() Policy {
	return s.policy
}

// Create 计算过期时间、剥离敏感字段并插入会话。
// 过期时间已到的会话计为已清理且不存储。持久化失败只记录，不返回。
func (s *Store) Create(ctx context.Context, in Session) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored := in.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.ExpiresAt = stored.CreatedAt.Add(s.policy.Window)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Status == "" {
		stored.Status = StatusProcessed
	}
	if !s.policy.PersistTranscript {
		stored.Transcript = ""
	}
	if !s.policy.PersistReplyText {
		stored.ReplyText = ""
	}
	stored.Metadata = SanitizeMetadata(stored.Metadata)

	if s.policy.PurgeEnabled {
		s.purgeLocked(ctx, now)
	}

	if stored.expiredAt(now) {
		s.recorder.RecordSessionsPurged(1)
		s.recorder.SetSessionsCurrent(len(s.items))
		stored.Status = StatusPurged
		return stored
	}

	s.items = append(s.items, stored)
	s.recorder.RecordSessionWrite()
	s.recorder.SetSessionsCurrent(len(s.items))
	s.persistLocked(ctx, "create")

	return stored.clone()
}

// ListByUser 按外部用户 ID 查询认证租户下的会话，按创建时间倒序分页
func (s *Store) ListByUser(ctx context.Context, userExternalID string, limit, offset int, authTenantID string) ([]Session, error) {
	if authTenantID == "" {
		return nil, fmt.Errorf("list sessions by user: %w", ErrAccessDenied)
	}
	return s.list(ctx, limit, offset, func(item *Session) bool {
		return item.UserExternalID == userExternalID && item.TenantID == authTenantID
	}), nil
}

// ListByTenant 查询租户的会话；过滤租户必须等于认证租户
func (s *Store) ListByTenant(ctx context.Context, tenantID string, limit, offset int, authTenantID string) ([]Session, error) {
	if authTenantID == "" || tenantID != authTenantID {
		return nil, fmt.Errorf("list sessions by tenant: %w", ErrAccessDenied)
	}
	return s.list(ctx, limit, offset, func(item *Session) bool {
		return item.TenantID == tenantID
	}), nil
}

func (s *Store) list(ctx context.Context, limit, offset int, match func(*Session) bool) []Session {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.policy.PurgeEnabled {
		s.purgeLocked(ctx, now)
	}

	result := make([]Session, 0)
	for i := range s.items {
		item := &s.items[i]
		if item.expiredAt(now) || !match(item) {
			continue
		}
		result = append(result, item.clone())
	}
	s.recorder.RecordSessionRead()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if offset >= len(result) {
		return []Session{}
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result
}

// Stats 汇总认证租户最近 maxSessions 条会话的用量
func (s *Store) Stats(ctx context.Context, tenantID, authTenantID string, maxSessions int) (Stats, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultListLimit
	}
	sessions, err := s.ListByTenant(ctx, tenantID, maxSessions, 0, authTenantID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TenantID:        tenantID,
		SessionsCurrent: len(sessions),
		LimitApplied:    maxSessions,
	}
	for _, item := range sessions {
		stats.Usage.STTMs += item.Usage.STTMs
		stats.Usage.LLMMs += item.Usage.LLMMs
		stats.Usage.TTSMs += item.Usage.TTSMs
		stats.Usage.TotalMs += item.Usage.TotalMs
	}
	return stats, nil
}

// PurgeExpired 删除 expires_at <= now 或缺失过期时间的会话，返回删除数量
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(ctx, now)
}

// Clear 清空内存集合并删除持久化数据
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.recorder.SetSessionsCurrent(0)
	if s.persister == nil {
		return
	}
	if err := s.persister.Remove(ctx); err != nil {
		s.recorder.RecordStorageError("remove")
		s.logger.Error("failed to remove persisted sessions", zap.Error(err))
	}
}

// Count 返回内存中的会话数量
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Ping 检查持久化后端
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.persister.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// StartSweep 启动周期性清理，ctx 取消时退出。interval <= 0 时不启动。
func (s *Store) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go s.sweepLoop(ctx, interval)
}

func (s *Store) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.PurgeExpired(ctx, s.now()); n > 0 {
				s.logger.Debug("swept expired sessions", zap.Int("purged", n))
			}
		}
	}
}

// =============================================================================
// 🔒 持锁辅助函数
// =============================================================================

func (s *Store) purgeLocked(ctx context.Context, now time.Time) int {
	kept := s.items[:0]
	for _, item := range s.items {
		if !item.expiredAt(now) {
			kept = append(kept, item)
		}
	}
	purged := len(s.items) - len(kept)
	for i := len(kept); i < len(s.items); i++ {
		s.items[i] = Session{}
	}
	s.items = kept

	s.recorder.SetSessionsCurrent(len(s.items))
	if purged > 0 {
		s.recorder.RecordSessionsPurged(purged)
		s.persistLocked(ctx, "purge")
	}
	return purged
}

func (s *Store) loadLocked(ctx context.Context) {
	if s.persister == nil {
		return
	}
	items, err := s.persister.Load(ctx)
	if err != nil {
		s.recorder.RecordStorageError("load")
		s.logger.Warn("failed to load persisted sessions, starting empty", zap.Error(err))
		return
	}
	s.items = items
}

func (s *Store) persistLocked(ctx context.Context, operation string) {
	if s.persister == nil {
		return
	}
	snapshot := make([]Session, len(s.items))
	copy(snapshot, s.items)
	if err := s.persister.Save(ctx, snapshot); err != nil {
		s.recorder.RecordStorageError(operation)
		s.logger.Error("failed to persist sessions",
			zap.String("operation", operation),
			zap.Int("sessions", len(snapshot)),
			zap.Error(err),
		)
	}
}
