package model

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(data interface{}) Response {
	return Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

func Error(code int, message string) Response {
	return Response{
		Code:    code,
		Message: message,
	}
}

// PaginatedResponse 分页响应
// total 为查询时刻的计数，并发写入时不同页之间可能存在差异
type PaginatedResponse struct {
	Data     interface{} `json:"data"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// CommandCheckRequest 命令检查请求（PTY代理调用）
type CommandCheckRequest struct {
	StreamID   string `json:"stream_id" binding:"required"`
	Command    string `json:"command" binding:"required"`
	WorkingDir string `json:"working_dir"`
}

// CommandCheckResponse 命令检查响应
type CommandCheckResponse struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
	Action  string `json:"action,omitempty"` // block/warn/log
}

// CommandRecordRequest 命令执行上报请求（PTY代理调用）
type CommandRecordRequest struct {
	StreamID   string `json:"stream_id" binding:"required"`
	Command    string `json:"command" binding:"required"`
	WorkingDir string `json:"working_dir"`
	ExitCode   int    `json:"exit_code"`
}

// SessionOpenRequest 会话建立请求（PTY代理调用）
type SessionOpenRequest struct {
	UserID           uint64 `json:"user_id" binding:"required"`
	ServerID         uint64 `json:"server_id" binding:"required"`
	RecordingEnabled bool   `json:"recording_enabled"`
	TerminalCols     int    `json:"terminal_cols"`
	TerminalRows     int    `json:"terminal_rows"`
}
