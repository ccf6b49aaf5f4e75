package display

// UpdateKind 显示更新类型
type UpdateKind string

const (
	// UpdateStatus 状态行文本更新
	UpdateStatus UpdateKind = "status"
	// UpdateBalances 代币余额更新
	UpdateBalances UpdateKind = "update_tokens"
)

// Update 一条显示更新
// Kind为UpdateStatus时使用Status字段，空串表示清除状态行；
// Kind为UpdateBalances时使用Player1/Player2字段
type Update struct {
	Kind    UpdateKind `json:"kind"`
	Status  string     `json:"status,omitempty"`
	Player1 float64    `json:"player1,omitempty"`
	Player2 float64    `json:"player2,omitempty"`
}
