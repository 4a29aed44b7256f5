package audit

import (
	"context"
	"time"
)

// SessionInfo 统一的会话信息
type SessionInfo struct {
	StreamID string // 会话流ID（唯一标识）

	// 归属信息
	UserID   uint64 // 平台用户ID
	ServerID uint64 // 目标服务器ID

	// 会话状态
	StartTime time.Time  // 开始时间
	EndTime   *time.Time // 结束时间

	// 终端信息
	TerminalCols int // 终端列数
	TerminalRows int // 终端行数

	// 录像信息
	RecordingEnabled bool // 是否启用录像
}

// CommandInfo 统一的命令信息
type CommandInfo struct {
	SessionID   uint64    // 会话ID
	UserID      uint64    // 用户ID
	ServerID    uint64    // 服务器ID
	Command     string    // 命令内容
	WorkingDir  string    // 工作目录
	ExecutedAt  time.Time // 执行时间
	ExitCode    int       // 退出码
	Blocked     bool      // 是否被拦截
	BlockReason string    // 拦截原因
}

// Auditor 统一的审计器接口
type Auditor interface {
	// AuditSessionStart 审计会话开始
	// 在会话建立时调用，创建会话记录
	AuditSessionStart(ctx context.Context, session *SessionInfo) (uint64, error)

	// AuditSessionEnd 审计会话结束
	// 更新结束时间、时长与录像路径；已结束的会话不会被再次更新
	AuditSessionEnd(ctx context.Context, sessionID uint64, endTime time.Time, recording string, degraded bool) error

	// AuditCommand 审计命令执行
	// 写入失败会带退避重试，保证审计记录尽量不丢
	AuditCommand(ctx context.Context, cmd *CommandInfo) error
}
