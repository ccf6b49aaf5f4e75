package websocket

import (
	"github.com/Woody4618/raspberry-token-minter/internal/display"
)

// StatusPayload 状态行广播负载
type StatusPayload struct {
	Status string `json:"status"`
}

// BalancesPayload 余额广播负载
type BalancesPayload struct {
	Player1 float64 `json:"player1"`
	Player2 float64 `json:"player2"`
	Label1  string  `json:"label1"`
	Label2  string  `json:"label2"`
}

// MintResultPayload 铸币结果广播负载
type MintResultPayload struct {
	OrderNo        string `json:"order_no"`
	Player         int    `json:"player"`
	Label          string `json:"label"`
	Trigger        string `json:"trigger"`
	Status         string `json:"status"`
	Signature      string `json:"signature,omitempty"`
	CreatedAccount bool   `json:"created_account,omitempty"`
	Error          string `json:"error,omitempty"`
	DurationMs     int64  `json:"duration_ms"`
}

// WebDisplay 把显示更新广播给所有已连接的仪表盘
type WebDisplay struct {
	hub *Hub
}

// NewWebDisplay 创建WebSocket显示表面
func NewWebDisplay(hub *Hub) *WebDisplay {
	return &WebDisplay{hub: hub}
}

// SetStatus 广播状态行更新，空串表示清除
func (d *WebDisplay) SetStatus(status string) {
	d.hub.BroadcastEvent(MessageTypeStatus, StatusPayload{Status: status})
}

// SetBalances 广播余额更新
func (d *WebDisplay) SetBalances(player1, player2 float64) {
	d.hub.BroadcastEvent(MessageTypeBalances, BalancesPayload{
		Player1: player1,
		Player2: player2,
		Label1:  display.FormatBalance(1, player1),
		Label2:  display.FormatBalance(2, player2),
	})
}
