package models

import (
	"time"

	"gorm.io/gorm"
)

// MintStatus 铸造结果状态
type MintStatus string

const (
	MintStatusSuccess      MintStatus = "success"       // 已确认
	MintStatusNotConfirmed MintStatus = "not_confirmed" // 已发送未确认
	MintStatusFailed       MintStatus = "failed"        // 流程失败
)

// MintTrigger 铸造触发来源
type MintTrigger string

const (
	MintTriggerButton MintTrigger = "button" // 实体按键
	MintTriggerAPI    MintTrigger = "api"    // 管理接口
)

// MintRecord 铸造审计记录
// 只用于审计查询，余额展示始终来自链上查询
type MintRecord struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// 订单信息
	OrderNo string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"` // 订单号（UUID）
	Player  int         `gorm:"index;not null" json:"player"`                          // 玩家编号 (1/2)
	Label   string      `gorm:"type:varchar(32)" json:"label"`                         // 玩家名称 (如 "Player 1")
	// trigger 是SQL保留字，列名用 trigger_source
	Trigger MintTrigger `gorm:"column:trigger_source;type:varchar(10);index;default:button" json:"trigger"` // 触发来源

	// 链上信息
	Wallet          string `gorm:"type:varchar(64);index;not null" json:"wallet"`   // 目标钱包地址
	TokenAccount    string `gorm:"type:varchar(64)" json:"token_account,omitempty"` // 关联代币账户
	CreatedAccount  bool   `gorm:"default:false" json:"created_account"`            // 本次是否创建了代币账户
	CreateSignature string `gorm:"type:varchar(128)" json:"create_signature,omitempty"`
	MintSignature   string `gorm:"type:varchar(128);index" json:"mint_signature,omitempty"`
	Amount          uint64 `gorm:"not null" json:"amount"` // 铸造数量（最小单位）

	// 结果
	Status   MintStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	ErrorMsg string     `gorm:"type:text" json:"error_msg,omitempty"` // 失败原因
	Duration int64      `gorm:"default:0" json:"duration"`            // 处理时长（毫秒）
}

// TableName 指定表名
func (MintRecord) TableName() string {
	return "mint_records"
}

// BeforeCreate 创建前的钩子
func (m *MintRecord) BeforeCreate(tx *gorm.DB) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return nil
}

// MintRecordQuery 查询参数
type MintRecordQuery struct {
	Player    int         `json:"player,omitempty"`
	Wallet    string      `json:"wallet,omitempty"`
	Status    MintStatus  `json:"status,omitempty"`
	Trigger   MintTrigger `json:"trigger,omitempty"`
	OrderNo   string      `json:"order_no,omitempty"`
	StartTime *time.Time  `json:"start_time,omitempty"`
	EndTime   *time.Time  `json:"end_time,omitempty"`
	HasError  *bool       `json:"has_error,omitempty"`
	Limit     int         `json:"limit,omitempty"`
	Offset    int         `json:"offset,omitempty"`
	OrderBy   string      `json:"order_by,omitempty"`
}

// MintRecordStats 统计信息
type MintRecordStats struct {
	TotalCount        int64   `json:"total_count"`
	TotalSuccess      int64   `json:"total_success"`
	TotalNotConfirmed int64   `json:"total_not_confirmed"`
	TotalFailed       int64   `json:"total_failed"`
	TotalCreated      int64   `json:"total_created_accounts"`
	Player1Count      int64   `json:"player1_count"`
	Player2Count      int64   `json:"player2_count"`
	AvgDuration       float64 `json:"avg_duration"`
	MaxDuration       int64   `json:"max_duration"`
	MinDuration       int64   `json:"min_duration"`
}
