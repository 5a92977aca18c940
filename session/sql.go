package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// =============================================================================
// 🗄️ SQL 持久化（gorm）
// =============================================================================

// QueryRecorder 记录数据库操作耗时
type QueryRecorder interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

// sessionRecord audio_sessions 表的行
type sessionRecord struct {
	ID                     string    `gorm:"primaryKey;size:64"`
	CorrelationID          string    `gorm:"size:128"`
	TenantID               string    `gorm:"size:32;index"`
	UserExternalID         string    `gorm:"size:128;index"`
	CreatedAt              time.Time `gorm:"autoCreateTime:false"`
	ExpiresAt              time.Time `gorm:"index"`
	Status                 string    `gorm:"size:16"`
	RequestMIMEType        string    `gorm:"size:64"`
	RequestDurationSeconds float64
	Transcript             string `gorm:"type:text"`
	ReplyText              string `gorm:"type:text"`
	TTSAvailable           bool
	TTSStorageRef          string `gorm:"size:512"`
	InputSeconds           float64
	OutputSeconds          float64
	STTMs                  int64
	LLMMs                  int64
	TTSMs                  int64
	TotalMs                int64
	ProviderSTT            string `gorm:"size:128"`
	ProviderLLM            string `gorm:"size:128"`
	ProviderTTS            string `gorm:"size:128"`
	Metadata               string `gorm:"type:text"`
}

// TableName 表名
func (sessionRecord) TableName() string {
	return "audio_sessions"
}

func toRecord(s Session) (sessionRecord, error) {
	var meta string
	if len(s.Metadata) > 0 {
		b, err := json.Marshal(s.Metadata)
		if err != nil {
			return sessionRecord{}, err
		}
		meta = string(b)
	}
	return sessionRecord{
		ID:                     s.ID,
		CorrelationID:          s.CorrelationID,
		TenantID:               s.TenantID,
		UserExternalID:         s.UserExternalID,
		CreatedAt:              s.CreatedAt.UTC(),
		ExpiresAt:              s.ExpiresAt.UTC(),
		Status:                 string(s.Status),
		RequestMIMEType:        s.RequestMIMEType,
		RequestDurationSeconds: s.RequestDurationSeconds,
		Transcript:             s.Transcript,
		ReplyText:              s.ReplyText,
		TTSAvailable:           s.TTSAvailable,
		TTSStorageRef:          s.TTSStorageRef,
		InputSeconds:           s.Usage.InputSeconds,
		OutputSeconds:          s.Usage.OutputSeconds,
		STTMs:                  s.Usage.STTMs,
		LLMMs:                  s.Usage.LLMMs,
		TTSMs:                  s.Usage.TTSMs,
		TotalMs:                s.Usage.TotalMs,
		ProviderSTT:            s.Usage.ProviderSTT,
		ProviderLLM:            s.Usage.ProviderLLM,
		ProviderTTS:            s.Usage.ProviderTTS,
		Metadata:               meta,
	}, nil
}

func (r sessionRecord) toSession() Session {
	s := Session{
		ID:                     r.ID,
		CorrelationID:          r.CorrelationID,
		TenantID:               r.TenantID,
		UserExternalID:         r.UserExternalID,
		CreatedAt:              r.CreatedAt,
		ExpiresAt:              r.ExpiresAt,
		Status:                 Status(r.Status),
		RequestMIMEType:        r.RequestMIMEType,
		RequestDurationSeconds: r.RequestDurationSeconds,
		Transcript:             r.Transcript,
		ReplyText:              r.ReplyText,
		TTSAvailable:           r.TTSAvailable,
		TTSStorageRef:          r.TTSStorageRef,
		Usage: Usage{
			InputSeconds:  r.InputSeconds,
			OutputSeconds: r.OutputSeconds,
			STTMs:         r.STTMs,
			LLMMs:         r.LLMMs,
			TTSMs:         r.TTSMs,
			TotalMs:       r.TotalMs,
			ProviderSTT:   r.ProviderSTT,
			ProviderLLM:   r.ProviderLLM,
			ProviderTTS:   r.ProviderTTS,
		},
	}
	if r.Metadata != "" {
		var meta map[string]string
		if err := json.Unmarshal([]byte(r.Metadata), &meta); err == nil {
			s.Metadata = meta
		}
	}
	return s
}

// Transactor 提供带重试的事务执行（由 database.PoolManager 实现）
type Transactor interface {
	WithTransactionRetry(ctx context.Context, maxRetries int, fn func(tx *gorm.DB) error) error
}

const saveRetries = 3

// SQLPersister 在单个事务中用完整存活集合替换 audio_sessions 表
type SQLPersister struct {
	db         *gorm.DB
	database   string
	recorder   QueryRecorder
	transactor Transactor
}

// NewSQLPersister 创建 SQL 持久化并迁移表结构
func NewSQLPersister(db *gorm.DB, database string, recorder QueryRecorder) (*SQLPersister, error) {
	if err := db.AutoMigrate(&sessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate audio_sessions: %w", err)
	}
	return &SQLPersister{db: db, database: database, recorder: recorder}, nil
}

// WithTransactor 使 Save 通过 t 执行事务，瞬时失败（死锁、锁超时）会重试
func (p *SQLPersister) WithTransactor(t Transactor) *SQLPersister {
	p.transactor = t
	return p
}

func (p *SQLPersister) observe(operation string, start time.Time) {
	if p.recorder != nil {
		p.recorder.RecordDBQuery(p.database, operation, time.Since(start))
	}
}

// Load 读取全部会话
func (p *SQLPersister) Load(ctx context.Context) ([]Session, error) {
	defer p.observe("load_sessions", time.Now())

	var records []sessionRecord
	if err := p.db.WithContext(ctx).Order("created_at").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	sessions := make([]Session, 0, len(records))
	for _, r := range records {
		sessions = append(sessions, r.toSession())
	}
	return sessions, nil
}

// Save 删除全部行后批量插入存活集合
func (p *SQLPersister) Save(ctx context.Context, sessions []Session) error {
	defer p.observe("save_sessions", time.Now())

	records := make([]sessionRecord, 0, len(sessions))
	for _, s := range sessions {
		r, err := toRecord(s)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", s.ID, err)
		}
		records = append(records, r)
	}

	replace := func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&sessionRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(records, 100).Error
	}

	if p.transactor != nil {
		return p.transactor.WithTransactionRetry(ctx, saveRetries, replace)
	}
	return p.db.WithContext(ctx).Transaction(replace)
}

// Remove 清空表
func (p *SQLPersister) Remove(ctx context.Context) error {
	defer p.observe("remove_sessions", time.Now())
	return p.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&sessionRecord{}).Error
}

// Ping 检查数据库连接
func (p *SQLPersister) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

var _ Persister = (*SQLPersister)(nil)
