package terminal

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/fisker/zaudit-backend/internal/blacklist"
	"github.com/fisker/zaudit-backend/internal/model"
	"github.com/gin-gonic/gin"
)

// BlacklistHandler 黑名单规则处理器
type BlacklistHandler struct {
	store *blacklist.Store
}

// NewBlacklistHandler 创建黑名单处理器
func NewBlacklistHandler(store *blacklist.Store) *BlacklistHandler {
	return &BlacklistHandler{store: store}
}

// GetRules 获取黑名单规则列表
func (h *BlacklistHandler) GetRules(c *gin.Context) {
	rules, err := h.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.Error(500, "获取黑名单失败"))
		return
	}

	c.JSON(http.StatusOK, model.Success(gin.H{
		"rules":   rules,
		"version": h.store.SnapshotVersion(),
	}))
}

// CreateRule 创建黑名单规则
// 模式在落库前做安全校验，不合法的正则直接拒绝
func (h *BlacklistHandler) CreateRule(c *gin.Context) {
	var req model.BlacklistRule
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Error(400, "请求参数错误: "+err.Error()))
		return
	}

	if uid, exists := c.Get("user_id"); exists {
		if id, ok := uid.(uint64); ok {
			req.CreatedBy = id
		}
	}

	if err := h.store.Create(&req); err != nil {
		switch {
		case errors.Is(err, blacklist.ErrInvalidPattern):
			c.JSON(http.StatusBadRequest, model.Error(400, "规则模式不合法: "+err.Error()))
		case errors.Is(err, blacklist.ErrInvalidAction):
			c.JSON(http.StatusBadRequest, model.Error(400, "规则动作不合法，只允许 block/warn/log"))
		default:
			c.JSON(http.StatusInternalServerError, model.Error(500, "创建黑名单规则失败"))
		}
		return
	}

	c.JSON(http.StatusOK, model.Success(req))
}

// UpdateRule 更新黑名单规则
func (h *BlacklistHandler) UpdateRule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.Error(400, "规则ID不合法"))
		return
	}

	var req model.BlacklistRule
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.Error(400, "请求参数错误: "+err.Error()))
		return
	}

	if err := h.store.Update(id, &req); err != nil {
		switch {
		case errors.Is(err, blacklist.ErrRuleNotFound):
			c.JSON(http.StatusNotFound, model.Error(404, "规则不存在"))
		case errors.Is(err, blacklist.ErrInvalidPattern):
			c.JSON(http.StatusBadRequest, model.Error(400, "规则模式不合法: "+err.Error()))
		case errors.Is(err, blacklist.ErrInvalidAction):
			c.JSON(http.StatusBadRequest, model.Error(400, "规则动作不合法，只允许 block/warn/log"))
		default:
			c.JSON(http.StatusInternalServerError, model.Error(500, "更新黑名单规则失败"))
		}
		return
	}

	c.JSON(http.StatusOK, model.Success(nil))
}

// DeleteRule 删除黑名单规则
func (h *BlacklistHandler) DeleteRule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.Error(400, "规则ID不合法"))
		return
	}

	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, blacklist.ErrRuleNotFound) {
			c.JSON(http.StatusNotFound, model.Error(404, "规则不存在"))
			return
		}
		c.JSON(http.StatusInternalServerError, model.Error(500, "删除黑名单规则失败"))
		return
	}

	c.JSON(http.StatusOK, model.Success(nil))
}
