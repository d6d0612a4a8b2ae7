package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// 别名指标
	AliasesGenerated prometheus.Counter
	AliasesReplaced  prometheus.Counter
	AliasesExpired   prometheus.Counter
	AliasesActive    prometheus.Gauge

	// 邮件指标
	MailsForwarded   prometheus.Counter
	ResolutionMisses prometheus.Counter
	ParseFailures    prometheus.Counter

	// 通知指标
	NotificationsSent  prometheus.Counter
	NotificationFailed prometheus.Counter

	// IMAP 连接指标
	IMAPReconnects prometheus.Counter
	IMAPConnected  prometheus.Gauge
}

// NewMetrics 创建监控指标（promauto 自动注册到默认注册表，进程内只调用一次）
func NewMetrics() *Metrics {
	return &Metrics{
		AliasesGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempmail_aliases_generated_total",
			Help: "Total number of aliases issued",
		}),
		AliasesReplaced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempmail_aliases_replaced_total",
			Help: "Total number of aliases displaced by re-issuance",
		}),
		AliasesExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempmail_aliases_expired_total",
			Help: "Total number of aliases removed by the expiration sweeper",
		}),
		AliasesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tempmail_aliases_active",
			Help: "Number of currently active aliases",
		}),
		MailsForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempmail_mails_forwarded_total",
			Help: "Total number of inbound mails matched to an alias",
		}),
		ResolutionMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempmail_resolution_misses_total",
			Help: "Total number of inbound mails discarded because no active alias matched",
		}),
		ParseFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempmail_parse_failures_total",
			Help: "Total number of inbound mails skipped because they could not be parsed",
		}),
		NotificationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempmail_notifications_sent_total",
			Help: "Total number of notifications delivered to subscribers",
		}),
		NotificationFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempmail_notifications_failed_total",
			Help: "Total number of notification attempts that failed",
		}),
		IMAPReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tempmail_imap_reconnects_total",
			Help: "Total number of IMAP reconnect attempts",
		}),
		IMAPConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tempmail_imap_connected",
			Help: "Whether the IMAP session is currently established (1) or not (0)",
		}),
	}
}

// Handler 返回 Prometheus 指标处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
