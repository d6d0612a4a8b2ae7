package sql

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/domain"
)

// aliasRecord 别名表行（主键为订阅者 ID，天然保证每人一条）。
type aliasRecord struct {
	OwnerID   string    `gorm:"primaryKey;type:varchar(64);column:owner_id"`
	Address   string    `gorm:"type:varchar(255);index"`
	CreatedAt time.Time `gorm:"index"`
}

func (aliasRecord) TableName() string { return "aliases" }

// statsEventRecord 统计事件表行。
type statsEventRecord struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)"`
	Kind       string    `gorm:"type:varchar(16);index"`
	OccurredAt time.Time `gorm:"index"`
}

func (statsEventRecord) TableName() string { return "stats_events" }

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）。
// 快照覆盖写：每次保存在一个事务内清空并重建对应表，
// 与文件存储保持相同的整体替换语义。
type Store struct {
	db         *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建 SQL 数据库存储
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	switch driverName {
	case "mysql":
		db, err = gorm.Open(mysql.Open(dsn), gormConfig)
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db, driverName: driverName}

	if err := store.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 执行数据库迁移（使用 GORM AutoMigrate）
func (s *Store) migrate() error {
	return s.db.AutoMigrate(&aliasRecord{}, &statsEventRecord{})
}

// LoadState 读取完整状态。
func (s *Store) LoadState() (*domain.State, error) {
	state := domain.NewState()

	var aliases []aliasRecord
	if err := s.db.Find(&aliases).Error; err != nil {
		return nil, fmt.Errorf("failed to load aliases: %w", err)
	}
	for _, rec := range aliases {
		state.Aliases[rec.OwnerID] = domain.Alias{
			OwnerID:   rec.OwnerID,
			Address:   rec.Address,
			CreatedAt: rec.CreatedAt,
		}
	}

	var events []statsEventRecord
	if err := s.db.Order("occurred_at").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load stats events: %w", err)
	}
	for _, rec := range events {
		switch domain.EventKind(rec.Kind) {
		case domain.EventGenerated:
			state.Stats.Generated = append(state.Stats.Generated, rec.OccurredAt)
		case domain.EventDelivered:
			state.Stats.Delivered = append(state.Stats.Delivered, rec.OccurredAt)
		}
	}

	return state, nil
}

// SaveAliases 保存别名快照。
func (s *Store) SaveAliases(aliases map[string]domain.Alias) error {
	records := make([]aliasRecord, 0, len(aliases))
	for _, alias := range aliases {
		records = append(records, aliasRecord{
			OwnerID:   alias.OwnerID,
			Address:   alias.Address,
			CreatedAt: alias.CreatedAt,
		})
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&aliasRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear aliases: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(records, 100).Error; err != nil {
			return fmt.Errorf("failed to insert aliases: %w", err)
		}
		return nil
	})
}

// SaveStats 保存统计日志快照。
func (s *Store) SaveStats(log *domain.StatsLog) error {
	records := make([]statsEventRecord, 0, len(log.Generated)+len(log.Delivered))
	for _, t := range log.Generated {
		records = append(records, statsEventRecord{
			ID:         uuid.NewString(),
			Kind:       string(domain.EventGenerated),
			OccurredAt: t,
		})
	}
	for _, t := range log.Delivered {
		records = append(records, statsEventRecord{
			ID:         uuid.NewString(),
			Kind:       string(domain.EventDelivered),
			OccurredAt: t,
		})
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&statsEventRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear stats events: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(records, 200).Error; err != nil {
			return fmt.Errorf("failed to insert stats events: %w", err)
		}
		return nil
	})
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
