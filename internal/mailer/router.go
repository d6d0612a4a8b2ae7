package mailer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/mailparse"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/monitoring"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/notify"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/pool"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/registry"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/stats"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/websocket"
)

// Router 把入站邮件路由给别名持有者。
//
// 对每封邮件：取回原文、解析信封、按 local-part 解析订阅者、
// 通知订阅者并记录投递统计。解析失败与通知失败都不中断批次；
// 只有会话级错误（取信失败）会上抛给监督器触发重连。
type Router struct {
	registry *registry.Registry
	stats    *stats.Aggregator
	notifier notify.Notifier
	pool     *pool.WorkerPool
	metrics  *monitoring.Metrics
	hub      *websocket.Hub
	log      *zap.Logger

	bodyLimit int
}

// RouterOptions Router 依赖项。Pool、Metrics、Hub 可为 nil。
type RouterOptions struct {
	Registry  *registry.Registry
	Stats     *stats.Aggregator
	Notifier  notify.Notifier
	Pool      *pool.WorkerPool
	Metrics   *monitoring.Metrics
	Hub       *websocket.Hub
	Logger    *zap.Logger
	BodyLimit int
}

// NewRouter 创建邮件路由器。
func NewRouter(opts RouterOptions) *Router {
	return &Router{
		registry:  opts.Registry,
		stats:     opts.Stats,
		notifier:  opts.Notifier,
		pool:      opts.Pool,
		metrics:   opts.Metrics,
		hub:       opts.Hub,
		log:       opts.Logger,
		bodyLimit: opts.BodyLimit,
	}
}

// ProcessMessages 顺序处理一批未读邮件。
//
// 同一批次内重复的标识只处理一次。整体语义是 at-least-once：
// 若服务器未能持久化已读标记，下个批次重复投递是可接受的。
func (r *Router) ProcessMessages(ctx context.Context, sess Session, ids []MessageID) error {
	processed := make(map[MessageID]struct{}, len(ids))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, done := processed[id]; done {
			continue
		}
		processed[id] = struct{}{}

		raw, err := sess.Fetch(ctx, id)
		if err != nil {
			// 取信失败是会话级故障，交给监督器重建连接
			return err
		}

		r.routeOne(raw, id)
	}
	return nil
}

// routeOne 处理单封邮件，所有失败都在此消化。
func (r *Router) routeOne(raw []byte, id MessageID) {
	env, err := mailparse.Parse(raw, r.bodyLimit)
	if err != nil {
		r.log.Warn("skipping unparseable message", zap.Uint32("id", uint32(id)), zap.Error(err))
		if r.metrics != nil {
			r.metrics.ParseFailures.Inc()
		}
		return
	}

	ownerID, ok := r.registry.ResolveLocalPart(env.ToLocalPart)
	if !ok {
		// 不匹配的邮件是预期的背景噪音（发往已过期别名的垃圾邮件等）
		r.log.Debug("discarding mail for unknown alias", zap.String("local_part", env.ToLocalPart))
		if r.metrics != nil {
			r.metrics.ResolutionMisses.Inc()
		}
		return
	}

	// 匹配即计一次投递，不受通知结果影响
	r.stats.RecordDelivered(time.Now().UTC())
	if r.metrics != nil {
		r.metrics.MailsForwarded.Inc()
	}
	r.hub.Publish(websocket.EventMailForwarded, websocket.EventPayload{
		OwnerID: ownerID,
		Subject: env.Subject,
	})

	r.log.Info("forwarding mail",
		zap.String("owner_id", ownerID),
		zap.String("local_part", env.ToLocalPart),
		zap.String("subject", env.Subject),
	)

	text := notify.NewMailText(env)
	r.dispatch(func() {
		if err := r.notifier.Notify(ownerID, text); err != nil {
			r.log.Warn("mail notification failed", zap.String("owner_id", ownerID), zap.Error(err))
			if r.metrics != nil {
				r.metrics.NotificationFailed.Inc()
			}
			return
		}
		if r.metrics != nil {
			r.metrics.NotificationsSent.Inc()
		}
	})
}

// dispatch 在协程池上异步投递通知；没有池时退化为同步执行。
func (r *Router) dispatch(task func()) {
	if r.pool != nil {
		r.pool.Submit(task)
		return
	}
	task()
}
