package health

import (
	"fmt"
	"net/http"

	"github.com/heptiolabs/healthcheck"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/storage"
)

// IMAPStatus 报告邮箱连接是否已建立。
type IMAPStatus interface {
	Connected() bool
}

// Checker 健康检查器
type Checker struct {
	health healthcheck.Handler
}

// NewChecker 创建健康检查器。
//
// 存活检查覆盖存储后端与协程数量；就绪检查额外要求 IMAP 会话已建立
// （短暂的重连窗口只影响就绪，不触发重启）。
func NewChecker(store storage.Store, imap IMAPStatus) *Checker {
	hc := healthcheck.NewHandler()

	hc.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(500))
	hc.AddLivenessCheck("storage", func() error {
		return store.Health()
	})
	hc.AddReadinessCheck("imap", func() error {
		if !imap.Connected() {
			return fmt.Errorf("imap session not established")
		}
		return nil
	})

	return &Checker{health: hc}
}

// LiveHandler 返回存活检查处理器。
func (c *Checker) LiveHandler() http.HandlerFunc {
	return c.health.LiveEndpoint
}

// ReadyHandler 返回就绪检查处理器。
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return c.health.ReadyEndpoint
}
