package router

import (
	"net/http"

	"github.com/fisker/zaudit-backend/internal/api/handler/terminal"
	"github.com/fisker/zaudit-backend/internal/api/middleware"
	"github.com/fisker/zaudit-backend/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Setup 装配所有路由
func Setup(
	blacklistHandler *terminal.BlacklistHandler,
	auditHandler *terminal.AuditHandler,
	proxyHandler *terminal.ProxyHandler,
	streamHandler *terminal.StreamHandler,
	cfg *config.Config,
) *gin.Engine {
	r := gin.New()

	// 使用自定义的 recovery 中间件（打印详细错误信息）
	r.Use(middleware.RecoveryMiddleware())
	// 使用 Gin 的 Logger 中间件（记录请求日志）
	r.Use(gin.Logger())

	// 中间件
	r.Use(middleware.CORS())

	// 管理端接口（JWT认证）
	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.Security.JWTSecret))
	{
		// 黑名单规则管理（仅管理员）
		blacklistGroup := api.Group("/blacklist")
		blacklistGroup.Use(middleware.AdminMiddleware())
		{
			blacklistGroup.GET("/rules", blacklistHandler.GetRules)       // 获取规则列表
			blacklistGroup.POST("/rules", blacklistHandler.CreateRule)    // 创建规则
			blacklistGroup.PUT("/rules/:id", blacklistHandler.UpdateRule) // 更新规则
			blacklistGroup.DELETE("/rules/:id", blacklistHandler.DeleteRule)
		}

		// 审计查询
		auditGroup := api.Group("/audit")
		{
			auditGroup.GET("/sessions", auditHandler.GetSessions)                    // 会话列表
			auditGroup.GET("/sessions/:id", auditHandler.GetSession)                 // 会话详情
			auditGroup.GET("/sessions/:id/commands", auditHandler.GetSessionCommands) // 会话命令
			auditGroup.GET("/sessions/:id/recording", auditHandler.DownloadRecording) // 录像下载
			auditGroup.GET("/commands", auditHandler.GetCommands)                    // 命令列表
		}
	}

	// 代理端接口（静态Token认证）
	proxy := r.Group("/api/proxy/terminal")
	proxy.Use(middleware.ProxyAuthMiddleware(cfg.Security.ProxyToken))
	{
		proxy.POST("/open-session", proxyHandler.OpenSession)              // 建立会话
		proxy.POST("/close-session/:stream_id", proxyHandler.CloseSession) // 结束会话
		proxy.POST("/check-command", proxyHandler.CheckCommand)            // 命令拦截检查
		proxy.POST("/record-command", proxyHandler.RecordCommand)          // 命令执行上报
		proxy.GET("/stream/:stream_id", streamHandler.HandleStream)        // 终端数据流
	}

	// Prometheus Metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check (支持 GET 和 HEAD 方法)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"type":   "audit-server",
		})
	})
	r.HEAD("/health", func(c *gin.Context) {
		c.Status(200)
	})

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Not Found",
		})
	})

	return r
}
