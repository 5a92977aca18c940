package session

import (
	"fmt"
	"strings"

	"github.com/BaSui01/voiceflow/config"
	"gorm.io/gorm"
)

// Backend 持久化后端类型
const (
	BackendFile   = "file"
	BackendSQL    = "sql"
	BackendMemory = "memory"
)

// NewPersister creates a Persister based on the configured backend.
// db is only required for the sql backend.
func NewPersister(cfg config.SessionConfig, db *gorm.DB, database string, recorder QueryRecorder) (Persister, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendFile:
		return NewJSONFilePersister(cfg.StoragePath), nil
	case BackendMemory:
		return nil, nil
	case BackendSQL:
		if db == nil {
			return nil, fmt.Errorf("session backend %q requires a database connection", BackendSQL)
		}
		return NewSQLPersister(db, database, recorder)
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", cfg.Backend)
	}
}
