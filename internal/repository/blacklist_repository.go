package repository

import (
	"github.com/fisker/zaudit-backend/internal/model"
	"gorm.io/gorm"
)

type BlacklistRepository struct {
	db *gorm.DB
}

func NewBlacklistRepository(db *gorm.DB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

func (r *BlacklistRepository) Create(rule *model.BlacklistRule) error {
	return r.db.Create(rule).Error
}

func (r *BlacklistRepository) FindByID(id uint64) (*model.BlacklistRule, error) {
	var rule model.BlacklistRule
	if err := r.db.First(&rule, id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *BlacklistRepository) Save(rule *model.BlacklistRule) error {
	return r.db.Save(rule).Error
}

// Delete 删除规则，返回实际删除的行数（0 表示规则不存在）
func (r *BlacklistRepository) Delete(id uint64) (int64, error) {
	result := r.db.Delete(&model.BlacklistRule{}, id)
	return result.RowsAffected, result.Error
}

// FindAll 按 ID 升序返回所有规则（ID 顺序即评估优先级）
func (r *BlacklistRepository) FindAll() ([]model.BlacklistRule, error) {
	var rules []model.BlacklistRule
	err := r.db.Order("id ASC").Find(&rules).Error
	return rules, err
}

func (r *BlacklistRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&model.BlacklistRule{}).Count(&count).Error
	return count, err
}
