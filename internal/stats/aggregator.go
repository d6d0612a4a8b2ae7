package stats

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/domain"
)

// RetentionWindow 统计事件的保留窗口。
const RetentionWindow = 24 * time.Hour

// Aggregator 维护别名生成与邮件投递的滚动事件日志。
//
// 事件只追加；超过保留窗口的条目在每次读写时惰性清理，
// 清理是破坏性的——一次 WindowCounts 之后被裁剪的历史不再保留。
type Aggregator struct {
	mu  sync.Mutex
	log *domain.StatsLog

	store  Persister
	logger *zap.Logger
}

// Persister 是聚合器需要的最小持久化接口。
type Persister interface {
	SaveStats(log *domain.StatsLog) error
}

// New 创建统计聚合器。store 可为 nil（不持久化，用于测试）。
func New(store Persister, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		log:    &domain.StatsLog{},
		store:  store,
		logger: logger,
	}
}

// Restore 从持久化快照恢复事件日志，只在启动时调用一次。
func (a *Aggregator) Restore(log *domain.StatsLog) {
	if log == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = log.Clone()
}

// RecordGenerated 记录一次别名生成。
func (a *Aggregator) RecordGenerated(ts time.Time) {
	a.record(domain.EventGenerated, ts)
}

// RecordDelivered 记录一次邮件投递。
func (a *Aggregator) RecordDelivered(ts time.Time) {
	a.record(domain.EventDelivered, ts)
}

// WindowCounts 裁剪早于 now-window 的事件后返回剩余事件计数。
func (a *Aggregator) WindowCounts(now time.Time, window time.Duration) domain.WindowCounts {
	a.mu.Lock()

	cutoff := now.Add(-window)
	a.log.Generated = pruneBefore(a.log.Generated, cutoff)
	a.log.Delivered = pruneBefore(a.log.Delivered, cutoff)

	counts := domain.WindowCounts{
		Generated: len(a.log.Generated),
		Delivered: len(a.log.Delivered),
	}
	snapshot := a.log.Clone()
	a.mu.Unlock()

	a.persist(snapshot)
	return counts
}

func (a *Aggregator) record(kind domain.EventKind, ts time.Time) {
	a.mu.Lock()

	cutoff := ts.Add(-RetentionWindow)
	switch kind {
	case domain.EventGenerated:
		a.log.Generated = append(pruneBefore(a.log.Generated, cutoff), ts)
	case domain.EventDelivered:
		a.log.Delivered = append(pruneBefore(a.log.Delivered, cutoff), ts)
	}

	snapshot := a.log.Clone()
	a.mu.Unlock()

	a.persist(snapshot)
}

// persist 在锁外写出快照，失败只记日志。
func (a *Aggregator) persist(snapshot *domain.StatsLog) {
	if a.store == nil {
		return
	}
	if err := a.store.SaveStats(snapshot); err != nil {
		a.logger.Warn("failed to persist stats", zap.Error(err))
	}
}

// pruneBefore 去掉早于等于 cutoff 的时间戳。
func pruneBefore(series []time.Time, cutoff time.Time) []time.Time {
	kept := series[:0]
	for _, t := range series {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
