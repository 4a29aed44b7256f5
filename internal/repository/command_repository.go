package repository

import (
	"time"

	"github.com/fisker/zaudit-backend/internal/model"
	"gorm.io/gorm"
)

type CommandRepository struct {
	db *gorm.DB
}

func NewCommandRepository(db *gorm.DB) *CommandRepository {
	return &CommandRepository{db: db}
}

func (r *CommandRepository) Create(record *model.TerminalCommand) error {
	return r.db.Create(record).Error
}

// FindCommands 分页查询命令记录（支持按会话过滤）
// 排序键 (executed_at, id) 稳定，并发插入不会造成翻页时的重复或跳页
func (r *CommandRepository) FindCommands(page, pageSize int, sessionID uint64) ([]model.TerminalCommand, int64, error) {
	var commands []model.TerminalCommand
	var total int64

	query := r.db.Model(&model.TerminalCommand{})

	if sessionID != 0 {
		query = query.Where("session_id = ?", sessionID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("executed_at DESC, id DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&commands).Error

	return commands, total, err
}

func (r *CommandRepository) CountBySessionID(sessionID uint64) (int64, error) {
	var count int64
	err := r.db.Model(&model.TerminalCommand{}).Where("session_id = ?", sessionID).Count(&count).Error
	return count, err
}

// DeleteOlderThan 删除指定时间之前执行的命令记录，返回删除行数
func (r *CommandRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.Where("executed_at < ?", cutoff).Delete(&model.TerminalCommand{})
	return result.RowsAffected, result.Error
}
