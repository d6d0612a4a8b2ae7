package service

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/domain"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/monitoring"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/notify"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/pool"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/registry"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/stats"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/websocket"
)

var (
	// ErrTooManyRequests 表示同一订阅者请求别名过于频繁。
	ErrTooManyRequests = errors.New("alias requested too frequently, try again later")
	// ErrNotAuthorized 表示请求者无权查看摘要。
	ErrNotAuthorized = errors.New("not authorized")
)

// AliasService 封装订阅者请求面：别名签发与 24 小时摘要。
// Discord 斜杠命令与管理 HTTP API 都经由本服务。
type AliasService struct {
	registry *registry.Registry
	stats    *stats.Aggregator
	notifier notify.Notifier
	pool     *pool.WorkerPool
	metrics  *monitoring.Metrics
	hub      *websocket.Hub
	log      *zap.Logger

	adminID string
	ttl     time.Duration

	// 每个订阅者一个限速器，防止命令刷屏
	cooldown   time.Duration
	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// AliasServiceOptions AliasService 依赖项。Pool、Metrics、Hub 可为 nil。
type AliasServiceOptions struct {
	Registry *registry.Registry
	Stats    *stats.Aggregator
	Notifier notify.Notifier
	Pool     *pool.WorkerPool
	Metrics  *monitoring.Metrics
	Hub      *websocket.Hub
	Logger   *zap.Logger
	AdminID  string
	TTL      time.Duration // 别名存活时间，默认 24h
	Cooldown time.Duration // 同一订阅者两次请求的最小间隔，0 表示不限制
}

// NewAliasService 创建别名业务服务。
func NewAliasService(opts AliasServiceOptions) *AliasService {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &AliasService{
		registry: opts.Registry,
		stats:    opts.Stats,
		notifier: opts.Notifier,
		pool:     opts.Pool,
		metrics:  opts.Metrics,
		hub:      opts.Hub,
		log:      opts.Logger,
		adminID:  opts.AdminID,
		ttl:      opts.TTL,
		cooldown: opts.Cooldown,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Request 为订阅者签发（或替换）一个别名。
//
// 若替换了旧别名，先尽力通知原持有者旧别名失效，再返回新别名。
func (s *AliasService) Request(ownerID string) (domain.Alias, error) {
	if !s.allow(ownerID) {
		return domain.Alias{}, ErrTooManyRequests
	}

	alias, displaced := s.registry.Issue(ownerID)
	s.stats.RecordGenerated(alias.CreatedAt)

	if s.metrics != nil {
		s.metrics.AliasesGenerated.Inc()
		s.metrics.AliasesActive.Set(float64(s.registry.ActiveSince(time.Now().UTC().Add(-s.ttl))))
	}
	s.hub.Publish(websocket.EventAliasGenerated, websocket.EventPayload{
		OwnerID: ownerID,
		Alias:   alias.Address,
	})

	s.log.Info("issued alias",
		zap.String("owner_id", ownerID),
		zap.String("address", alias.Address),
		zap.Bool("replaced", displaced != nil),
	)

	if displaced != nil {
		if s.metrics != nil {
			s.metrics.AliasesReplaced.Inc()
		}
		old := *displaced
		s.dispatch(func() {
			if err := s.notifier.Notify(ownerID, notify.AliasReplacedText(old)); err != nil {
				s.log.Debug("replacement notification failed",
					zap.String("owner_id", ownerID),
					zap.Error(err),
				)
			}
		})
	}

	return alias, nil
}

// Summary 返回近 24 小时摘要，仅管理员可用。
func (s *AliasService) Summary(requestorID string) (domain.Summary, error) {
	if requestorID != s.adminID {
		return domain.Summary{}, ErrNotAuthorized
	}

	now := time.Now().UTC()
	counts := s.stats.WindowCounts(now, stats.RetentionWindow)
	active := s.registry.ActiveSince(now.Add(-s.ttl))

	if s.metrics != nil {
		s.metrics.AliasesActive.Set(float64(active))
	}

	return domain.Summary{
		ActiveAliases:    active,
		DeliveredLast24h: counts.Delivered,
	}, nil
}

// allow 检查订阅者是否处于请求冷却期外。
func (s *AliasService) allow(ownerID string) bool {
	if s.cooldown <= 0 {
		return true
	}

	s.limitersMu.Lock()
	limiter, ok := s.limiters[ownerID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(s.cooldown), 1)
		s.limiters[ownerID] = limiter
	}
	s.limitersMu.Unlock()

	return limiter.Allow()
}

// dispatch 在协程池上异步投递通知；没有池时退化为同步执行。
func (s *AliasService) dispatch(task func()) {
	if s.pool != nil {
		s.pool.Submit(task)
		return
	}
	task()
}
