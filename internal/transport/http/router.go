// Package httptransport 提供管理与观测 HTTP 接口：
// 健康检查、Prometheus 指标、24 小时摘要与运营事件 WebSocket 流。
package httptransport

import (
	"net/http"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/health"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/middleware"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/monitoring"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/service"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	AliasService   *service.AliasService
	Health         *health.Checker
	Metrics        *monitoring.Metrics
	Hub            *websocket.Hub
	Logger         *zap.Logger
	AdminID        string   // 摘要查询以该身份执行
	AdminToken     string   // 管理接口的 Bearer Token，留空则关闭
	AllowedOrigins []string // CORS 允许的来源列表
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))

	router.Use(gincors.New(gincors.Config{
		AllowOrigins: deps.AllowedOrigins,
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	}))

	router.GET("/healthz", gin.WrapF(deps.Health.LiveHandler()))
	router.GET("/readyz", gin.WrapF(deps.Health.ReadyHandler()))
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	admin := router.Group("/api/admin", middleware.AdminAuth(deps.AdminToken))
	{
		admin.GET("/summary", summaryHandler(deps.AliasService, deps.AdminID))
		admin.GET("/ws", deps.Hub.HandleWS)
	}

	return router
}

// summaryHandler 返回近 24 小时摘要。
func summaryHandler(aliases *service.AliasService, adminID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := aliases.Summary(adminID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
