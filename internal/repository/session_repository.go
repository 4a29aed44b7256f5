package repository

import (
	"time"

	"github.com/fisker/zaudit-backend/internal/model"
	"gorm.io/gorm"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(session *model.TerminalSession) error {
	return r.db.Create(session).Error
}

func (r *SessionRepository) FindByID(id uint64) (*model.TerminalSession, error) {
	var session model.TerminalSession
	if err := r.db.First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) FindByStreamID(streamID string) (*model.TerminalSession, error) {
	var session model.TerminalSession
	if err := r.db.Where("stream_id = ?", streamID).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// FindSessions 分页查询会话记录（支持按用户、服务器过滤）
// 排序键 (started_at, id) 稳定，并发插入不会造成翻页时的重复或跳页
func (r *SessionRepository) FindSessions(page, pageSize int, userID, serverID uint64) ([]model.TerminalSession, int64, error) {
	var sessions []model.TerminalSession
	var total int64

	query := r.db.Model(&model.TerminalSession{})

	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	if serverID != 0 {
		query = query.Where("server_id = ?", serverID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("started_at DESC, id DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&sessions).Error

	return sessions, total, err
}

// DeleteOlderThan 删除指定时间之前开始的会话，返回删除行数
func (r *SessionRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.Where("started_at < ?", cutoff).Delete(&model.TerminalSession{})
	return result.RowsAffected, result.Error
}
