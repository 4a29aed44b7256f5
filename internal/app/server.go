package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fisker/zaudit-backend/internal/api/router"
	"github.com/fisker/zaudit-backend/pkg/config"
	"github.com/fisker/zaudit-backend/pkg/database"
	"github.com/fisker/zaudit-backend/pkg/logger"
	pkgredis "github.com/fisker/zaudit-backend/pkg/redis"
	"github.com/gin-gonic/gin"
)

// StartServer 启动 HTTP 服务器并阻塞到收到退出信号
func StartServer(a *App) {
	if a.Config.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup router
	r := router.Setup(
		a.Handlers.Blacklist,
		a.Handlers.Audit,
		a.Handlers.Proxy,
		a.Handlers.Stream,
		a.Config,
	)

	// Start background services
	a.BlacklistStore.Start()
	a.CleanupTask.Start()

	// Start HTTP server
	addr := fmt.Sprintf(":%d", a.Config.Server.APIPort)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	printStartupBanner(a.Config)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Infof("\nShutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// 1. Shutdown HTTP server
	logger.Infof("  → Stopping HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Infof("  Warning: HTTP server shutdown error: %v", err)
	} else {
		logger.Infof("  ✓ HTTP server stopped")
	}

	// 2. Close active sessions (finalize recordings before losing them)
	logger.Infof("  → Closing active sessions...")
	a.Tracker.CloseAll(shutdownCtx)
	logger.Infof("  ✓ Active sessions closed")

	// 3. Stop background services
	logger.Infof("  → Stopping background services...")
	a.BlacklistStore.Stop()
	a.CleanupTask.Stop()
	logger.Infof("  ✓ Background services stopped")

	// 4. Close database
	logger.Infof("  → Closing database...")
	database.Close()
	logger.Infof("  ✓ Database closed")

	// 5. Close Redis if enabled
	if a.Config.Redis.Enabled {
		logger.Infof("  → Closing Redis...")
		pkgredis.Close()
		logger.Infof("  ✓ Redis closed")
	}

	logger.Infof("")
	logger.Infof("Shutdown complete")
}

// printStartupBanner 打印启动横幅
func printStartupBanner(cfg *config.Config) {
	logger.Infof("")
	logger.Infof("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	logger.Infof("ZAudit Server - Terminal Session Audit & Command Interception")
	logger.Infof("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	logger.Infof("")
	logger.Infof("Features:")
	logger.Infof("   • Command Interception - First-match blacklist rules")
	logger.Infof("   • Session Recording - Asciinema format, gzip compressed")
	logger.Infof("   • Full Audit Trail - Append-only command records")
	logger.Infof("")
	logger.Infof("Endpoints:")
	logger.Infof("   • Admin API  - /api/v1 (:%d)", cfg.Server.APIPort)
	logger.Infof("   • Proxy API  - /api/proxy/terminal (:%d)", cfg.Server.APIPort)
	logger.Infof("   • Metrics    - /metrics")
	logger.Infof("")
	if cfg.Audit.RetentionDays > 0 {
		logger.Infof("Retention: %d days", cfg.Audit.RetentionDays)
	} else {
		logger.Infof("Retention: unlimited")
	}
	logger.Infof("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	logger.Infof("")
}
