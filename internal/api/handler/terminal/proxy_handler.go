package terminal

import (
	"errors"
	"net/http"

	"github.com/fisker/zaudit-backend/internal/model"
	"github.com/fisker/zaudit-backend/internal/repository"
	"github.com/fisker/zaudit-backend/internal/session"
	"github.com/fisker/zaudit-backend/pkg/logger"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ProxyHandler PTY代理上报接口处理器
// 终端代理在命令回车时调用 check-command，命令返回后调用 record-command
type ProxyHandler struct {
	tracker     *session.Tracker
	sessionRepo *repository.SessionRepository
}

// NewProxyHandler 创建代理处理器
func NewProxyHandler(tracker *session.Tracker, sessionRepo *repository.SessionRepository) *ProxyHandler {
	return &ProxyHandler{tracker: tracker, sessionRepo: sessionRepo}
}

// OpenSession 建立审计会话
// 路由：POST /api/proxy/terminal/open-session
func (h *ProxyHandler) OpenSession(c *gin.Context) {
	var req model.SessionOpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Error(400, "请求参数错误: "+err.Error()))
		return
	}

	s, err := h.tracker.Open(c.Request.Context(), req.UserID, req.ServerID, req.RecordingEnabled, req.TerminalCols, req.TerminalRows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.Error(500, "创建会话失败"))
		return
	}

	c.JSON(http.StatusOK, model.Success(gin.H{
		"session_id": s.ID,
		"stream_id":  s.StreamID,
	}))
}

// CloseSession 结束审计会话
// 路由：POST /api/proxy/terminal/close-session/:stream_id
func (h *ProxyHandler) CloseSession(c *gin.Context) {
	streamID := c.Param("stream_id")

	err := h.tracker.Close(c.Request.Context(), streamID)
	if err == nil {
		c.JSON(http.StatusOK, model.Success(nil))
		return
	}

	if errors.Is(err, session.ErrSessionEnded) {
		c.JSON(http.StatusConflict, model.Error(409, "会话已结束"))
		return
	}

	if errors.Is(err, session.ErrSessionNotFound) {
		// 进程重启后内存态丢失，回查数据库判定是未知会话还是已结束会话
		rec, dbErr := h.sessionRepo.FindByStreamID(streamID)
		if dbErr == nil && rec.EndedAt != nil {
			c.JSON(http.StatusConflict, model.Error(409, "会话已结束"))
			return
		}
		if dbErr != nil && !errors.Is(dbErr, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, model.Error(500, "关闭会话失败"))
			return
		}
		c.JSON(http.StatusNotFound, model.Error(404, "会话不存在"))
		return
	}

	c.JSON(http.StatusInternalServerError, model.Error(500, "关闭会话失败"))
}

// CheckCommand 命令拦截检查
// 路由：POST /api/proxy/terminal/check-command
// 会话不存在或已结束时不阻断命令（fail-open），只记录告警
func (h *ProxyHandler) CheckCommand(c *gin.Context) {
	var req model.CommandCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Error(400, "请求参数错误: "+err.Error()))
		return
	}

	verdict, err := h.tracker.HandleCommand(c.Request.Context(), req.StreamID, req.Command, req.WorkingDir)
	if err != nil {
		logger.Warnf("[Proxy] Check command for unknown/ended session %s: %v", req.StreamID, err)
		c.JSON(http.StatusOK, model.Success(model.CommandCheckResponse{Blocked: false}))
		return
	}

	c.JSON(http.StatusOK, model.Success(model.CommandCheckResponse{
		Blocked: verdict.Blocked(),
		Reason:  verdict.Reason,
		Action:  verdict.Action,
	}))
}

// RecordCommand 上报已执行命令的退出码
// 路由：POST /api/proxy/terminal/record-command
// 只用于未命中任何规则的命令；命中规则的命令在 check-command 时已落库
func (h *ProxyHandler) RecordCommand(c *gin.Context) {
	var req model.CommandRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Error(400, "请求参数错误: "+err.Error()))
		return
	}

	if err := h.tracker.RecordExecuted(c.Request.Context(), req.StreamID, req.Command, req.WorkingDir, req.ExitCode); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionEnded) {
			logger.Warnf("[Proxy] Record command for unknown/ended session %s", req.StreamID)
			c.JSON(http.StatusOK, model.Success(nil))
			return
		}
		c.JSON(http.StatusInternalServerError, model.Error(500, "记录命令失败"))
		return
	}

	c.JSON(http.StatusOK, model.Success(nil))
}
