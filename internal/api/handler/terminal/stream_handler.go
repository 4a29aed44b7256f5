package terminal

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fisker/zaudit-backend/internal/model"
	"github.com/fisker/zaudit-backend/internal/session"
	"github.com/fisker/zaudit-backend/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// 代理端已通过静态Token认证
		return true
	},
}

// StreamFrame 终端数据帧
// type: i=输入 o=输出
type StreamFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// StreamHandler 终端数据流接收器
// 代理通过 WebSocket 持续推送会话的输入输出帧用于录像
type StreamHandler struct {
	tracker *session.Tracker
}

// NewStreamHandler 创建数据流处理器
func NewStreamHandler(tracker *session.Tracker) *StreamHandler {
	return &StreamHandler{tracker: tracker}
}

// HandleStream 接收会话数据流
// 路由：GET /api/proxy/terminal/stream/:stream_id
func (h *StreamHandler) HandleStream(c *gin.Context) {
	streamID := c.Param("stream_id")

	// 升级前确认会话存在，避免为未知会话维持连接
	if !h.tracker.Exists(streamID) {
		c.JSON(http.StatusNotFound, model.Error(404, "会话不存在"))
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("[Stream] Failed to upgrade to websocket for %s: %v", streamID, err)
		return
	}
	defer ws.Close()

	logger.Infof("[Stream] Stream connected: %s", streamID)

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("[Stream] Stream closed unexpectedly for %s: %v", streamID, err)
			}
			break
		}

		var frame StreamFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			logger.Warnf("[Stream] Invalid frame on %s: %v", streamID, err)
			continue
		}

		switch frame.Type {
		case "i":
			err = h.tracker.RecordInput(streamID, frame.Data)
		case "o":
			err = h.tracker.RecordOutput(streamID, frame.Data)
		default:
			continue
		}
		if errors.Is(err, session.ErrSessionNotFound) {
			// 会话已经关闭并回收，结束数据流
			break
		}
	}

	logger.Infof("[Stream] Stream disconnected: %s", streamID)
}
