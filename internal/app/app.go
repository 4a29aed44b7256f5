package app

import (
	"time"

	"github.com/fisker/zaudit-backend/internal/api/handler/terminal"
	"github.com/fisker/zaudit-backend/internal/audit"
	"github.com/fisker/zaudit-backend/internal/blacklist"
	"github.com/fisker/zaudit-backend/internal/recorder"
	"github.com/fisker/zaudit-backend/internal/repository"
	"github.com/fisker/zaudit-backend/internal/session"
	"github.com/fisker/zaudit-backend/pkg/config"
	"github.com/fisker/zaudit-backend/pkg/database"
	"github.com/fisker/zaudit-backend/pkg/logger"
)

// Repositories 数据访问层
type Repositories struct {
	Blacklist *repository.BlacklistRepository
	Session   *repository.SessionRepository
	Command   *repository.CommandRepository
}

// Handlers HTTP处理层
type Handlers struct {
	Blacklist *terminal.BlacklistHandler
	Audit     *terminal.AuditHandler
	Proxy     *terminal.ProxyHandler
	Stream    *terminal.StreamHandler
}

// App 应用程序上下文
type App struct {
	Config         *config.Config
	Repos          *Repositories
	Handlers       *Handlers
	BlacklistStore *blacklist.Store
	Tracker        *session.Tracker
	Recordings     *recorder.Manager
	CleanupTask    *audit.CleanupTask
}

// Initialize 初始化应用程序
func Initialize(cfgPath string) (*App, error) {
	// 1. Bootstrap (logger, database, redis)
	cfg, err := Bootstrap(cfgPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			database.Close()
		}
	}()

	// 2. Initialize repositories
	repos := &Repositories{
		Blacklist: repository.NewBlacklistRepository(database.DB),
		Session:   repository.NewSessionRepository(database.DB),
		Command:   repository.NewCommandRepository(database.DB),
	}
	logger.Infof("Repositories initialized")

	// 3. Initialize blacklist engine (store + cache + interceptor)
	cache := blacklist.NewCache()
	store, err := blacklist.NewStore(repos.Blacklist, cache, blacklist.Config{
		ProbeBudget:     time.Duration(cfg.Audit.ProbeBudgetMs) * time.Millisecond,
		RefreshInterval: time.Duration(cfg.Audit.RefreshIntervalSec) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	interceptor := blacklist.NewInterceptor(cache, time.Duration(cfg.Audit.MatchTimeoutMs)*time.Millisecond)
	logger.Infof("Blacklist engine initialized (snapshot v%d)", store.SnapshotVersion())

	// 4. Initialize auditor and recording manager
	auditor := audit.NewDatabaseAuditor(database.DB)
	recordings := recorder.NewManager(cfg.Audit.RecordingDir)
	logger.Infof("Audit service initialized (recordings: %s)", cfg.Audit.RecordingDir)

	// 5. Initialize session tracker
	tracker := session.NewTracker(auditor, interceptor,
		func(streamID string, cols, rows int) (session.Recorder, error) {
			return recordings.Open(streamID, cols, rows)
		},
		recordings.Remove,
	)
	logger.Infof("Session tracker initialized")

	// 6. Initialize query service and cleanup task
	queryService := audit.NewQueryService(repos.Session, repos.Command)
	cleanupTask := audit.NewCleanupTask(repos.Session, repos.Command, cfg.Audit.RecordingDir, cfg.Audit.RetentionDays)

	// 7. Initialize handlers
	handlers := &Handlers{
		Blacklist: terminal.NewBlacklistHandler(store),
		Audit:     terminal.NewAuditHandler(queryService),
		Proxy:     terminal.NewProxyHandler(tracker, repos.Session),
		Stream:    terminal.NewStreamHandler(tracker),
	}
	logger.Infof("Handlers initialized")

	return &App{
		Config:         cfg,
		Repos:          repos,
		Handlers:       handlers,
		BlacklistStore: store,
		Tracker:        tracker,
		Recordings:     recordings,
		CleanupTask:    cleanupTask,
	}, nil
}
