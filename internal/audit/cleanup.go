package audit

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fisker/zaudit-backend/internal/repository"
	"github.com/fisker/zaudit-backend/pkg/logger"
)

// CleanupTask 审计数据保留清理任务
// 定期删除超过保留期的会话、命令记录和录像文件
type CleanupTask struct {
	sessionRepo   *repository.SessionRepository
	commandRepo   *repository.CommandRepository
	recordingDir  string
	retentionDays int
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCleanupTask 创建清理任务
// retentionDays <= 0 表示不清理
func NewCleanupTask(sessionRepo *repository.SessionRepository, commandRepo *repository.CommandRepository, recordingDir string, retentionDays int) *CleanupTask {
	return &CleanupTask{
		sessionRepo:   sessionRepo,
		commandRepo:   commandRepo,
		recordingDir:  recordingDir,
		retentionDays: retentionDays,
		interval:      1 * time.Hour,
		stopChan:      make(chan struct{}),
	}
}

// Start 启动后台清理循环
func (t *CleanupTask) Start() {
	if t.retentionDays <= 0 {
		logger.Info("[Cleanup] Retention disabled, cleanup task not started")
		return
	}

	logger.Infof("[Cleanup] Cleanup task started (retention: %d days)", t.retentionDays)
	go t.loop()
}

// Stop 停止清理任务
func (t *CleanupTask) Stop() {
	close(t.stopChan)
}

func (t *CleanupTask) loop() {
	// 启动后先跑一轮，再进入周期
	t.runOnce()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.runOnce()
		case <-t.stopChan:
			logger.Info("[Cleanup] Cleanup task stopped")
			return
		}
	}
}

// runOnce 执行一轮清理
func (t *CleanupTask) runOnce() {
	cutoff := time.Now().AddDate(0, 0, -t.retentionDays)

	commands, err := t.commandRepo.DeleteOlderThan(cutoff)
	if err != nil {
		logger.Warnf("[Cleanup] Failed to delete expired commands: %v", err)
	}

	sessions, err := t.sessionRepo.DeleteOlderThan(cutoff)
	if err != nil {
		logger.Warnf("[Cleanup] Failed to delete expired sessions: %v", err)
	}

	files := t.cleanRecordings(cutoff)

	if commands > 0 || sessions > 0 || files > 0 {
		logger.Infof("[Cleanup] Removed %d sessions, %d commands, %d recording files older than %s",
			sessions, commands, files, cutoff.Format("2006-01-02"))
	}
}

// cleanRecordings 删除超期的录像文件，按修改时间判断
func (t *CleanupTask) cleanRecordings(cutoff time.Time) int {
	entries, err := os.ReadDir(t.recordingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("[Cleanup] Failed to read recording dir: %v", err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".cast.gz") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(t.recordingDir, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Warnf("[Cleanup] Failed to remove recording %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed
}
