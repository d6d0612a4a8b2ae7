package filesystem

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/domain"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/storage"
)

const (
	aliasesFile = "aliases.json"
	statsFile   = "stats.json"
)

// Store 文件系统存储实现。
// 别名与统计分别落在数据目录下的 aliases.json 与 stats.json，
// 每次保存整体覆盖写出对应文件。
type Store struct {
	basePath string
	mu       sync.Mutex // 串行化对同一文件的覆盖写
}

// NewStore 创建文件系统存储实例
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path must not be empty")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// LoadState 读取完整状态。文件缺失时按空状态处理。
func (s *Store) LoadState() (*domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := domain.NewState()

	if err := s.readJSON(aliasesFile, &state.Aliases); err != nil {
		return nil, err
	}
	if err := s.readJSON(statsFile, state.Stats); err != nil {
		return nil, err
	}
	return state, nil
}

// SaveAliases 保存别名快照。
func (s *Store) SaveAliases(aliases map[string]domain.Alias) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(aliasesFile, aliases)
}

// SaveStats 保存统计日志快照。
func (s *Store) SaveStats(log *domain.StatsLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(statsFile, log)
}

// Health 检查数据目录是否可写。
func (s *Store) Health() error {
	info, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", s.basePath)
	}
	return nil
}

// Close 实现 storage.Store，文件存储无需清理。
func (s *Store) Close() error { return nil }

// readJSON 读取并解析一个数据文件，文件不存在时不做任何修改。
func (s *Store) readJSON(name string, out interface{}) error {
	path := filepath.Join(s.basePath, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", storage.ErrStateCorrupted, name, err)
	}
	return nil
}

// writeJSON 先写临时文件再改名，避免进程中途退出留下半截文件。
func (s *Store) writeJSON(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	path := filepath.Join(s.basePath, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}
