package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrClientNotFound = errors.New("客户端未找到")
	ErrSendBufferFull = errors.New("发送缓冲区已满")
	ErrInvalidMessage = errors.New("无效的消息格式")
)

// 默认超时配置，可被WebSocketConfig覆盖
const (
	// 写超时
	defaultWriteWait = 10 * time.Second

	// 读取pong超时
	defaultPongWait = 60 * time.Second

	// 最大消息大小，仪表盘只上行心跳类小消息
	defaultMaxMessageSize = 1024
)

// Client WebSocket客户端
type Client struct {
	ID         string          // 客户端ID
	RemoteAddr string          // 远端地址
	Hub        *Hub            // Hub引用
	Conn       *websocket.Conn // WebSocket连接
	Send       chan []byte     // 发送通道
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	remote := ""
	if conn != nil {
		remote = conn.RemoteAddr().String()
	}
	return &Client{
		ID:         uuid.New().String(),
		RemoteAddr: remote,
		Hub:        hub,
		Conn:       conn,
		Send:       make(chan []byte, 256),
	}
}

// writeWait 写超时
func (c *Client) writeWait() time.Duration {
	if c.Hub.config != nil && c.Hub.config.WriteTimeout > 0 {
		return c.Hub.config.WriteTimeout
	}
	return defaultWriteWait
}

// pongWait 读取pong超时
func (c *Client) pongWait() time.Duration {
	if c.Hub.config != nil && c.Hub.config.PongTimeout > 0 {
		return c.Hub.config.PongTimeout
	}
	return defaultPongWait
}

// maxMessageSize 最大消息大小
func (c *Client) maxMessageSize() int64 {
	if c.Hub.config != nil && c.Hub.config.MaxMessageSize > 0 {
		return c.Hub.config.MaxMessageSize
	}
	return defaultMaxMessageSize
}

// ReadPump 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.maxMessageSize())
	c.Conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			break
		}

		// 处理接收到的消息
		c.handleMessage(message)
	}
}

// WritePump 写入消息
func (c *Client) WritePump() {
	// ping周期必须小于pong超时
	pingPeriod := (c.pongWait() * 9) / 10

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.writeWait()))
			if !ok {
				// Hub关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 批量发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.writeWait()))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.Hub.logger.Error("解析WebSocket消息失败",
			zap.String("client_id", c.ID),
			zap.Error(err))
		c.sendError("消息格式错误")
		// 断开发送无效JSON的连接
		c.Close()
		return
	}

	// 验证消息类型不为空
	if msg.Type == "" {
		c.Hub.logger.Warn("收到空消息类型",
			zap.String("client_id", c.ID))
		c.sendError("消息类型不能为空")
		// 断开连接
		c.Close()
		return
	}

	// 根据消息类型处理，仪表盘只上行心跳
	switch msg.Type {
	case MessageTypePing:
		// 客户端应用层心跳，回应pong
		pong := &Message{
			Type:      MessageTypePong,
			Timestamp: time.Now().Unix(),
		}
		c.Hub.SendToClient(c.ID, pong)

	case MessageTypePong:
		// 客户端响应ping
		c.Hub.logger.Debug("收到pong",
			zap.String("client_id", c.ID))

	default:
		// 不支持的消息类型
		c.Hub.logger.Warn("收到不支持的消息类型",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type))
		c.sendError("不支持的消息类型: " + msg.Type)
		// 断开发送无效消息类型的连接
		c.Close()
	}
}

// sendError 发送错误消息
func (c *Client) sendError(message string) {
	errorMsg := &Message{
		Type:      MessageTypeError,
		Timestamp: time.Now().Unix(),
		Data:      json.RawMessage(`{"error":"` + message + `"}`),
	}
	c.Hub.SendToClient(c.ID, errorMsg)
}

// SendMessage 发送消息给客户端
func (c *Client) SendMessage(msgType string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	msg := &Message{
		Type:      msgType,
		Data:      jsonData,
		Timestamp: time.Now().Unix(),
	}

	return c.Hub.SendToClient(c.ID, msg)
}

// Close 关闭客户端连接
func (c *Client) Close() {
	c.Hub.unregister <- c
}
