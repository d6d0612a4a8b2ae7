package memory

import (
	"sync"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/domain"
)

// Store 使用内存保存状态快照，主要用于开发验证与测试。
type Store struct {
	mu      sync.Mutex
	aliases map[string]domain.Alias
	stats   *domain.StatsLog

	// SaveAliasCalls / SaveStatsCalls 记录保存次数，供测试断言持久化时机。
	SaveAliasCalls int
	SaveStatsCalls int
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		aliases: make(map[string]domain.Alias),
		stats:   &domain.StatsLog{},
	}
}

// LoadState 返回当前快照的拷贝。
func (s *Store) LoadState() (*domain.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := domain.NewState()
	for owner, alias := range s.aliases {
		state.Aliases[owner] = alias
	}
	state.Stats = s.stats.Clone()
	return state, nil
}

// SaveAliases 保存别名快照。
func (s *Store) SaveAliases(aliases map[string]domain.Alias) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]domain.Alias, len(aliases))
	for owner, alias := range aliases {
		snapshot[owner] = alias
	}
	s.aliases = snapshot
	s.SaveAliasCalls++
	return nil
}

// SaveStats 保存统计日志快照。
func (s *Store) SaveStats(log *domain.StatsLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = log.Clone()
	s.SaveStatsCalls++
	return nil
}

// Health 实现 storage.Store。
func (s *Store) Health() error { return nil }

// Close 实现 storage.Store。
func (s *Store) Close() error { return nil }
