package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/voiceflow/config"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "sessions.db")), &gorm.Config{})
	require.NoError(t, err)
	return db
}

// =============================================================================
// 🧪 JSON 文件持久化
// =============================================================================

func TestJSONFilePersister_RoundTripThroughStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.json")
	ctx := context.Background()

	first, _, _ := newTestStore(t, defaultPolicy(), NewJSONFilePersister(path))
	a := first.Create(ctx, sampleSession("tenant-a", "user-1"))
	b := first.Create(ctx, sampleSession("tenant-b", "user-2"))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	second, _, _ := newTestStore(t, defaultPolicy(), NewJSONFilePersister(path))
	require.Equal(t, 2, second.Count())

	list, err := second.ListByTenant(ctx, "tenant-a", 10, 0, "tenant-a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)
	assert.True(t, a.ExpiresAt.Equal(list[0].ExpiresAt))
	assert.Equal(t, a.Usage, list[0].Usage)
	assert.Equal(t, a.Metadata, list[0].Metadata)

	list, err = second.ListByTenant(ctx, "tenant-b", 10, 0, "tenant-b")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
}

func TestJSONFilePersister_MalformedFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, _, recorder := newTestStore(t, defaultPolicy(), NewJSONFilePersister(path))

	assert.Equal(t, 0, store.Count())
	assert.Equal(t, 1, recorder.storageErrors["load"])
}

func TestJSONFilePersister_SkipsUnparsableRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	content := `[
		{"id":"good","tenant_id":"t","created_at":"2025-03-01T12:00:00Z","expires_at":"2099-01-01T00:00:00Z"},
		{"id":"bad","tenant_id":"t","created_at":"yesterday","expires_at":"2099-01-01T00:00:00Z"},
		"not an object"
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	sessions, err := NewJSONFilePersister(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "good", sessions[0].ID)
}

func TestJSONFilePersister_MissingFile(t *testing.T) {
	p := NewJSONFilePersister(filepath.Join(t.TempDir(), "absent.json"))

	sessions, err := p.Load(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, sessions)
	assert.NoError(t, p.Remove(context.Background()))
}

func TestJSONFilePersister_PurgeRewritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	cfg := config.DefaultSessionConfig()
	cfg.RetentionDays = 1
	store, clock, _ := newTestStore(t, PolicyFromConfig(cfg), NewJSONFilePersister(path))
	ctx := context.Background()

	store.Create(ctx, sampleSession("tenant-a", "user-1"))
	clock.Advance(25 * time.Hour)
	require.Equal(t, 1, store.PurgeExpired(ctx, clock.Now()))

	sessions, err := NewJSONFilePersister(path).Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestJSONFilePersister_SaveLeavesNoTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	p := NewJSONFilePersister(path)

	require.NoError(t, p.Save(context.Background(), []Session{{ID: "a", TenantID: "t1"}}))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := p.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}

func TestJSONFilePersister_FailedReplaceCleansTempFile(t *testing.T) {
	// 目标路径是非空目录，rename 必然失败
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "occupied"), 0o755))
	p := NewJSONFilePersister(path)

	err := p.Save(context.Background(), []Session{{ID: "a", TenantID: "t1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replace session file")

	_, statErr := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}

func TestStore_ClearRemovesBackingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store, _, _ := newTestStore(t, defaultPolicy(), NewJSONFilePersister(path))
	ctx := context.Background()
	store.Create(ctx, sampleSession("tenant-a", "user-1"))

	store.Clear(ctx)

	assert.Equal(t, 0, store.Count())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

// =============================================================================
// 🧪 SQL 持久化
// =============================================================================

type fakeQueryRecorder struct {
	ops []string
}

func (r *fakeQueryRecorder) RecordDBQuery(database, operation string, duration time.Duration) {
	r.ops = append(r.ops, database+":"+operation)
}

func TestSQLPersister_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	queries := &fakeQueryRecorder{}
	persister, err := NewSQLPersister(db, "sqlite", queries)
	require.NoError(t, err)
	ctx := context.Background()

	cfg := config.DefaultSessionConfig()
	cfg.PersistTranscript = true
	first, _, _ := newTestStore(t, PolicyFromConfig(cfg), persister)
	created := first.Create(ctx, sampleSession("tenant-a", "user-1"))
	first.Create(ctx, sampleSession("tenant-a", "user-2"))

	second := NewStore(ctx, Options{
		Policy:    PolicyFromConfig(cfg),
		Persister: persister,
		Logger:    zap.NewNop(),
		Now:       newFakeClock().Now,
	})
	require.Equal(t, 2, second.Count())

	list, err := second.ListByUser(ctx, "user-1", 10, 0, "tenant-a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "hola", got.Transcript)
	assert.Empty(t, got.ReplyText)
	assert.Equal(t, created.Usage, got.Usage)
	assert.Equal(t, map[string]string{"context": "diario_emocional"}, got.Metadata)
	assert.True(t, created.ExpiresAt.Equal(got.ExpiresAt))

	assert.Contains(t, queries.ops, "sqlite:save_sessions")
	assert.Contains(t, queries.ops, "sqlite:load_sessions")
	assert.NoError(t, second.Ping(ctx))
}

func TestSQLPersister_SaveReplacesWholeSet(t *testing.T) {
	db := setupTestDB(t)
	persister, err := NewSQLPersister(db, "sqlite", nil)
	require.NoError(t, err)
	ctx := context.Background()
	now := newFakeClock().Now()

	require.NoError(t, persister.Save(ctx, []Session{
		{ID: "a", TenantID: "t", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		{ID: "b", TenantID: "t", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}))
	require.NoError(t, persister.Save(ctx, []Session{
		{ID: "c", TenantID: "t", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}))

	loaded, err := persister.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "c", loaded[0].ID)

	require.NoError(t, persister.Save(ctx, nil))
	loaded, err = persister.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	require.NoError(t, persister.Save(ctx, []Session{{ID: "d", TenantID: "t", CreatedAt: now, ExpiresAt: now}}))
	require.NoError(t, persister.Remove(ctx))
	loaded, err = persister.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

type countingTransactor struct {
	db    *gorm.DB
	calls int
}

func (c *countingTransactor) WithTransactionRetry(ctx context.Context, maxRetries int, fn func(tx *gorm.DB) error) error {
	c.calls++
	return c.db.WithContext(ctx).Transaction(fn)
}

func TestSQLPersister_SaveUsesTransactor(t *testing.T) {
	db := setupTestDB(t)
	persister, err := NewSQLPersister(db, "sqlite", nil)
	require.NoError(t, err)
	tx := &countingTransactor{db: db}
	persister.WithTransactor(tx)
	ctx := context.Background()
	now := newFakeClock().Now()

	require.NoError(t, persister.Save(ctx, []Session{{ID: "a", TenantID: "t", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}}))
	assert.Equal(t, 1, tx.calls)

	loaded, err := persister.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "a", loaded[0].ID)
}

// =============================================================================
// 🧪 工厂
// =============================================================================

func TestNewPersister(t *testing.T) {
	cfg := config.DefaultSessionConfig()
	cfg.StoragePath = filepath.Join(t.TempDir(), "sessions.json")

	p, err := NewPersister(cfg, nil, "", nil)
	require.NoError(t, err)
	fp, ok := p.(*JSONFilePersister)
	require.True(t, ok)
	assert.Equal(t, cfg.StoragePath, fp.Path())

	cfg.Backend = "memory"
	p, err = NewPersister(cfg, nil, "", nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	cfg.Backend = "sql"
	_, err = NewPersister(cfg, nil, "", nil)
	assert.Error(t, err)

	p, err = NewPersister(cfg, setupTestDB(t), "sqlite", nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLPersister{}, p)

	cfg.Backend = "s3"
	_, err = NewPersister(cfg, nil, "", nil)
	assert.Error(t, err)
}
