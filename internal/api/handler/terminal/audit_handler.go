package terminal

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/fisker/zaudit-backend/internal/audit"
	"github.com/fisker/zaudit-backend/internal/model"
	"github.com/gin-gonic/gin"
)

// AuditHandler 审计查询处理器
type AuditHandler struct {
	query *audit.QueryService
}

// NewAuditHandler 创建审计查询处理器
func NewAuditHandler(query *audit.QueryService) *AuditHandler {
	return &AuditHandler{query: query}
}

func parseQueryUint(c *gin.Context, key string) uint64 {
	v, _ := strconv.ParseUint(c.Query(key), 10, 64)
	return v
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// GetSessions 分页查询会话列表
// 支持 user_id / server_id 过滤，按开始时间倒序
func (h *AuditHandler) GetSessions(c *gin.Context) {
	page := parseQueryInt(c, "page", 1)
	pageSize := parseQueryInt(c, "page_size", 20)
	userID := parseQueryUint(c, "user_id")
	serverID := parseQueryUint(c, "server_id")

	sessions, total, err := h.query.ListSessions(page, pageSize, userID, serverID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.Error(500, "查询会话列表失败"))
		return
	}

	c.JSON(http.StatusOK, model.Success(model.PaginatedResponse{
		Data:     sessions,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}))
}

// GetSession 查询单个会话详情
func (h *AuditHandler) GetSession(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.Error(400, "会话ID不合法"))
		return
	}

	session, err := h.query.GetSession(id)
	if err != nil {
		if errors.Is(err, audit.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, model.Error(404, "会话不存在"))
			return
		}
		c.JSON(http.StatusInternalServerError, model.Error(500, "查询会话失败"))
		return
	}

	c.JSON(http.StatusOK, model.Success(session))
}

// GetCommands 分页查询命令记录
// 支持 session_id 过滤，按执行时间倒序
func (h *AuditHandler) GetCommands(c *gin.Context) {
	page := parseQueryInt(c, "page", 1)
	pageSize := parseQueryInt(c, "page_size", 20)
	sessionID := parseQueryUint(c, "session_id")

	commands, total, err := h.query.ListCommands(page, pageSize, sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.Error(500, "查询命令记录失败"))
		return
	}

	c.JSON(http.StatusOK, model.Success(model.PaginatedResponse{
		Data:     commands,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}))
}

// GetSessionCommands 查询指定会话的命令记录
func (h *AuditHandler) GetSessionCommands(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.Error(400, "会话ID不合法"))
		return
	}

	page := parseQueryInt(c, "page", 1)
	pageSize := parseQueryInt(c, "page_size", 20)

	commands, total, err := h.query.ListCommands(page, pageSize, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.Error(500, "查询命令记录失败"))
		return
	}

	c.JSON(http.StatusOK, model.Success(model.PaginatedResponse{
		Data:     commands,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}))
}

// DownloadRecording 下载会话录像文件（asciinema gzip格式）
func (h *AuditHandler) DownloadRecording(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.Error(400, "会话ID不合法"))
		return
	}

	path, err := h.query.GetRecordingPath(id)
	if err != nil {
		switch {
		case errors.Is(err, audit.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, model.Error(404, "会话不存在"))
		case errors.Is(err, audit.ErrRecordingNotFound):
			c.JSON(http.StatusNotFound, model.Error(404, "会话没有可用录像"))
		default:
			c.JSON(http.StatusInternalServerError, model.Error(500, "查询录像失败"))
		}
		return
	}

	c.Header("Content-Type", "application/gzip")
	c.Header("Content-Disposition", "attachment; filename="+filepath.Base(path))
	c.File(path)
}
