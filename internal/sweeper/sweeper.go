// Package sweeper 周期性清理超过存活时间的别名。
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/monitoring"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/notify"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/pool"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/registry"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/websocket"
)

// Sweeper 按固定周期移除过期别名并尽力通知持有者。
// 过期不计入邮件统计。清理节拍独立运行，不依赖邮件处理或别名签发。
type Sweeper struct {
	registry *registry.Registry
	notifier notify.Notifier
	pool     *pool.WorkerPool
	metrics  *monitoring.Metrics
	hub      *websocket.Hub
	log      *zap.Logger

	interval time.Duration
	ttl      time.Duration
}

// Options Sweeper 依赖项。Pool、Metrics、Hub 可为 nil。
type Options struct {
	Registry *registry.Registry
	Notifier notify.Notifier
	Pool     *pool.WorkerPool
	Metrics  *monitoring.Metrics
	Hub      *websocket.Hub
	Logger   *zap.Logger
	Interval time.Duration // 清理周期，默认 5m
	TTL      time.Duration // 别名存活时间，默认 24h
}

// New 创建过期清理器。
func New(opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Sweeper{
		registry: opts.Registry,
		notifier: opts.Notifier,
		pool:     opts.Pool,
		metrics:  opts.Metrics,
		hub:      opts.Hub,
		log:      opts.Logger,
		interval: opts.Interval,
		ttl:      opts.TTL,
	}
}

// Run 循环执行清理节拍直到 ctx 取消。
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(time.Now().UTC())
		}
	}
}

// Tick 执行一次清理。
func (s *Sweeper) Tick(now time.Time) {
	expired := s.registry.Sweep(now, s.ttl)
	if len(expired) == 0 {
		return
	}

	s.log.Info("swept expired aliases", zap.Int("count", len(expired)))
	for _, alias := range expired {
		if s.metrics != nil {
			s.metrics.AliasesExpired.Inc()
		}
		s.hub.Publish(websocket.EventAliasExpired, websocket.EventPayload{
			OwnerID: alias.OwnerID,
			Alias:   alias.Address,
		})

		alias := alias
		s.dispatch(func() {
			if err := s.notifier.Notify(alias.OwnerID, notify.AliasExpiredText(alias)); err != nil {
				s.log.Debug("expiry notification failed",
					zap.String("owner_id", alias.OwnerID),
					zap.Error(err),
				)
			}
		})
	}
}

// dispatch 在协程池上异步投递通知；没有池时退化为同步执行。
func (s *Sweeper) dispatch(task func()) {
	if s.pool != nil {
		s.pool.Submit(task)
		return
	}
	task()
}
