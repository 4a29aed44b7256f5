package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fisker/zaudit-backend/internal/model"
	"github.com/fisker/zaudit-backend/pkg/logger"
	"github.com/fisker/zaudit-backend/pkg/metrics"
	"gorm.io/gorm"
)

// ErrSessionAlreadyEnded 会话已经结束
var ErrSessionAlreadyEnded = errors.New("session already ended")

const (
	commandWriteAttempts = 3
	commandRetryBackoff  = 100 * time.Millisecond
)

// DatabaseAuditor 统一的数据库审计器
type DatabaseAuditor struct {
	db *gorm.DB
}

// NewDatabaseAuditor 创建数据库审计器
func NewDatabaseAuditor(db *gorm.DB) Auditor {
	return &DatabaseAuditor{db: db}
}

// AuditSessionStart 审计会话开始
func (a *DatabaseAuditor) AuditSessionStart(ctx context.Context, session *SessionInfo) (uint64, error) {
	logger.Infof("[Audit] Session start: stream=%s, user=%d, server=%d",
		session.StreamID, session.UserID, session.ServerID)

	record := &model.TerminalSession{
		UserID:           session.UserID,
		ServerID:         session.ServerID,
		StreamID:         session.StreamID,
		StartedAt:        session.StartTime,
		RecordingEnabled: session.RecordingEnabled,
	}

	if err := a.db.WithContext(ctx).Create(record).Error; err != nil {
		logger.Errorf("[Audit] Failed to create session record: %v", err)
		return 0, fmt.Errorf("failed to create session record: %w", err)
	}

	metrics.ActiveSessions.Inc()
	return record.ID, nil
}

// AuditSessionEnd 审计会话结束
// ended_at 只允许从空写入一次，重复结束返回 ErrSessionAlreadyEnded
func (a *DatabaseAuditor) AuditSessionEnd(ctx context.Context, sessionID uint64, endTime time.Time, recording string, degraded bool) error {
	logger.Infof("[Audit] Session ending: %d", sessionID)

	var session model.TerminalSession
	if err := a.db.WithContext(ctx).First(&session, sessionID).Error; err != nil {
		logger.Warnf("[Audit] Session not found: %d", sessionID)
		return fmt.Errorf("session not found: %w", err)
	}

	duration := int(endTime.Sub(session.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	updates := map[string]interface{}{
		"ended_at":           endTime,
		"duration":           duration,
		"recording_path":     recording,
		"recording_degraded": degraded,
	}

	result := a.db.WithContext(ctx).Model(&model.TerminalSession{}).
		Where("id = ? AND ended_at IS NULL", sessionID).
		Updates(updates)
	if result.Error != nil {
		logger.Errorf("[Audit] Failed to update session record: %v", result.Error)
		return fmt.Errorf("failed to update session record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionAlreadyEnded
	}

	metrics.ActiveSessions.Dec()
	logger.Infof("[Audit] Session ended: %d (duration: %ds)", sessionID, duration)
	return nil
}

// AuditCommand 审计命令执行
// 命令记录和会话计数在同一事务中写入，失败按指数退避重试
func (a *DatabaseAuditor) AuditCommand(ctx context.Context, cmd *CommandInfo) error {
	record := &model.TerminalCommand{
		SessionID:   cmd.SessionID,
		UserID:      cmd.UserID,
		ServerID:    cmd.ServerID,
		Command:     cmd.Command,
		WorkingDir:  cmd.WorkingDir,
		ExecutedAt:  cmd.ExecutedAt,
		ExitCode:    cmd.ExitCode,
		Blocked:     cmd.Blocked,
		BlockReason: cmd.BlockReason,
	}

	var lastErr error
	backoff := commandRetryBackoff
	for attempt := 1; attempt <= commandWriteAttempts; attempt++ {
		lastErr = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(record).Error; err != nil {
				return err
			}
			return tx.Model(&model.TerminalSession{}).
				Where("id = ?", cmd.SessionID).
				Update("command_count", gorm.Expr("command_count + 1")).Error
		})
		if lastErr == nil {
			if cmd.Blocked {
				metrics.CommandsBlockedTotal.Inc()
			}
			return nil
		}

		logger.Warnf("[Audit] Command write failed (attempt %d/%d): %v", attempt, commandWriteAttempts, lastErr)
		if attempt < commandWriteAttempts {
			metrics.AuditWriteRetriesTotal.Inc()
			// 重建主键，避免上一轮半成功插入造成冲突
			record.ID = 0
			select {
			case <-ctx.Done():
				return fmt.Errorf("failed to create command record: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	logger.Errorf("[Audit] Command record lost after %d attempts: session=%d", commandWriteAttempts, cmd.SessionID)
	return fmt.Errorf("failed to create command record: %w", lastErr)
}
