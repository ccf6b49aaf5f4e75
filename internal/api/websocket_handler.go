package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Woody4618/raspberry-token-minter/internal/config"
	"github.com/Woody4618/raspberry-token-minter/internal/middleware"
	ws "github.com/Woody4618/raspberry-token-minter/internal/websocket"
)

// WebSocketHandler WebSocket处理器
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub *ws.Hub, cfg *config.WebSocketConfig, logger *zap.Logger) *WebSocketHandler {
	readBuffer := 1024
	writeBuffer := 1024
	if cfg != nil && cfg.ReadBufferSize > 0 {
		readBuffer = cfg.ReadBufferSize
	}
	if cfg != nil && cfg.WriteBufferSize > 0 {
		writeBuffer = cfg.WriteBufferSize
	}

	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: writeBuffer,
			CheckOrigin: func(r *http.Request) bool {
				// 机台仪表盘部署在局域网内，放开Origin检查
				return true
			},
		},
		logger: logger,
	}
}

// DashboardWebSocket 仪表盘WebSocket连接
// 连接后会收到状态行、余额和铸币结果的实时推送
func (h *WebSocketHandler) DashboardWebSocket(c *gin.Context) {
	username, _ := middleware.GetUsername(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.String("username", username),
			zap.String("ip", c.ClientIP()),
			zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("仪表盘已连接",
		zap.String("client_id", client.ID),
		zap.String("username", username),
		zap.String("ip", c.ClientIP()))
}

// GetOnlineCount 获取在线仪表盘数量
// @Summary 获取在线仪表盘数量
// @Tags Kiosk
// @Security Bearer
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/kiosk/online [get]
func (h *WebSocketHandler) GetOnlineCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online_count": h.hub.GetOnlineCount(),
	})
}
