package storage

import (
	"errors"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/domain"
)

// ErrStateCorrupted 表示持久化状态无法解析。
var ErrStateCorrupted = errors.New("persisted state is corrupted")

// Store 聚合状态持久化接口。
//
// 注册表与统计聚合器在每次成功变更后整体写出各自的快照，
// 启动时通过 LoadState 一次性恢复。存储层不承担任何业务校验，
// 变更的串行化由上层组件的内部互斥保证。
type Store interface {
	// LoadState 读取完整状态；不存在任何已保存数据时返回空状态而非错误。
	LoadState() (*domain.State, error)

	// SaveAliases 整体覆盖写出别名快照（ownerID -> alias）。
	SaveAliases(aliases map[string]domain.Alias) error

	// SaveStats 整体覆盖写出统计日志快照。
	SaveStats(log *domain.StatsLog) error

	// Health 检查存储后端是否可用。
	Health() error

	// Close 释放底层连接。
	Close() error
}
