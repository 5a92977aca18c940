package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Persister 会话集合的持久化后端。Save 总是接收完整的存活集合。
type Persister interface {
	Load(ctx context.Context) ([]Session, error)
	Save(ctx context.Context, sessions []Session) error
	Remove(ctx context.Context) error
}

// =============================================================================
// 📄 JSON 文件持久化
// =============================================================================

// JSONFilePersister 将整个会话数组写入单个 JSON 文件
type JSONFilePersister struct {
	path string
}

// NewJSONFilePersister 创建 JSON 文件持久化
func NewJSONFilePersister(path string) *JSONFilePersister {
	return &JSONFilePersister{path: path}
}

// Path 返回文件路径
func (p *JSONFilePersister) Path() string {
	return p.path
}

// Load 读取会话文件。文件不存在返回空集；单条记录无法解析时跳过。
func (p *JSONFilePersister) Load(ctx context.Context) ([]Session, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}

	sessions := make([]Session, 0, len(raw))
	for _, item := range raw {
		var s Session
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// Save 原子写: 写入临时文件后重命名
func (p *JSONFilePersister) Save(ctx context.Context, sessions []Session) error {
	if sessions == nil {
		sessions = []Session{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tempPath := p.path + ".tmp"
	if err := writeSynced(tempPath, data); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tempPath, p.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// writeSynced 写入并 fsync，保证 rename 之后内容已落盘
func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Remove 删除会话文件
func (p *JSONFilePersister) Remove(ctx context.Context) error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

var _ Persister = (*JSONFilePersister)(nil)
