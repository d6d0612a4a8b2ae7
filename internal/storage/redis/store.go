package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/domain"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/storage"
)

const (
	aliasesKey = "tempmail:aliases"
	statsKey   = "tempmail:stats"

	opTimeout = 3 * time.Second
)

// Store Redis 存储实现。
// 别名与统计快照分别编码为 JSON 保存在两个固定键下。
type Store struct {
	rdb *goredis.Client
}

// Options Redis 连接参数
type Options struct {
	Address  string
	Password string
	DB       int
}

// NewStore 创建 Redis 存储实例并验证连接。
func NewStore(opts Options) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{rdb: rdb}, nil
}

// LoadState 读取完整状态。键不存在时按空状态处理。
func (s *Store) LoadState() (*domain.State, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	state := domain.NewState()

	if err := s.getJSON(ctx, aliasesKey, &state.Aliases); err != nil {
		return nil, err
	}
	if err := s.getJSON(ctx, statsKey, state.Stats); err != nil {
		return nil, err
	}
	return state, nil
}

// SaveAliases 保存别名快照。
func (s *Store) SaveAliases(aliases map[string]domain.Alias) error {
	return s.setJSON(aliasesKey, aliases)
}

// SaveStats 保存统计日志快照。
func (s *Store) SaveStats(log *domain.StatsLog) error {
	return s.setJSON(statsKey, log)
}

// Health 检查 Redis 连接。
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

// Close 关闭 Redis 连接。
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) getJSON(ctx context.Context, key string, out interface{}) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", storage.ErrStateCorrupted, key, err)
	}
	return nil
}

func (s *Store) setJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
