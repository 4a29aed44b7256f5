package model

import (
	"time"
)

// TerminalSession 终端会话记录
// ended_at 一旦写入即不可变；计数与终止只由 Session Tracker 修改
type TerminalSession struct {
	ID                uint64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID            uint64     `json:"user_id" gorm:"index"`
	ServerID          uint64     `json:"server_id" gorm:"index"`
	StreamID          string     `json:"stream_id" gorm:"type:varchar(64);uniqueIndex"`
	StartedAt         time.Time  `json:"started_at" gorm:"index"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	Duration          int        `json:"duration"` // 持续时间（秒），会话结束时写入
	CommandCount      int        `json:"command_count"`
	RecordingEnabled  bool       `json:"recording_enabled"`
	RecordingPath     string     `json:"recording_path,omitempty" gorm:"type:varchar(512)"`
	RecordingDegraded bool       `json:"recording_degraded"` // 录像有丢帧或写入失败
	CreatedAt         time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (TerminalSession) TableName() string {
	return "terminal_sessions"
}

// TerminalCommand 终端命令执行记录（仅追加，写入后不再修改）
type TerminalCommand struct {
	ID          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID   uint64    `json:"session_id" gorm:"index"`
	UserID      uint64    `json:"user_id" gorm:"index"`
	ServerID    uint64    `json:"server_id" gorm:"index"`
	Command     string    `json:"command" gorm:"type:text"`
	WorkingDir  string    `json:"working_dir" gorm:"type:varchar(512)"`
	ExecutedAt  time.Time `json:"executed_at" gorm:"index"`
	ExitCode    int       `json:"exit_code"` // 仅在未被阻断时有意义
	Blocked     bool      `json:"blocked" gorm:"index"`
	BlockReason string    `json:"block_reason,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (TerminalCommand) TableName() string {
	return "terminal_commands"
}
