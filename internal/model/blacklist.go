package model

import (
	"time"
)

// 规则动作
const (
	ActionBlock = "block" // 阻断命令执行
	ActionWarn  = "warn"  // 允许执行，向用户提示警告
	ActionLog   = "log"   // 允许执行，静默记录
	ActionNone  = "none"  // 未命中任何规则
)

// ValidAction 检查动作是否合法
func ValidAction(action string) bool {
	return action == ActionBlock || action == ActionWarn || action == ActionLog
}

// BlacklistRule 终端命令黑名单规则
// ID 同时决定评估优先级：按 ID 升序评估，首个命中的规则生效
type BlacklistRule struct {
	ID          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Pattern     string    `json:"pattern" gorm:"type:varchar(512);not null;comment:正则匹配模式"`
	Description string    `json:"description" gorm:"type:text;comment:说明"`
	Action      string    `json:"action" gorm:"type:varchar(20);default:block;comment:动作:block/warn/log"`
	Enabled     bool      `json:"enabled" gorm:"index;comment:是否启用"`
	CreatedBy   uint64    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (BlacklistRule) TableName() string {
	return "blacklist_rules"
}
