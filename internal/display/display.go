package display

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Woody4618/raspberry-token-minter/internal/logger"
)

// Display 显示表面，接收渲染后的状态与余额
type Display interface {
	// SetStatus 设置状态行文本，空串表示清除
	SetStatus(status string)
	// SetBalances 设置两名玩家的余额
	SetBalances(player1, player2 float64)
}

// FormatBalance 余额标签文本，余额取整显示
func FormatBalance(player int, tokens float64) string {
	return fmt.Sprintf("Player %d (%.0f)", player, tokens)
}

// ConsoleDisplay 控制台显示表面，将更新写入结构化日志
type ConsoleDisplay struct {
	logger *zap.Logger
}

// NewConsoleDisplay 创建控制台显示表面
func NewConsoleDisplay() *ConsoleDisplay {
	return &ConsoleDisplay{
		logger: logger.GetModuleLogger("display"),
	}
}

// SetStatus 设置状态行
func (d *ConsoleDisplay) SetStatus(status string) {
	if status == "" {
		d.logger.Info("状态已清除")
		return
	}
	d.logger.Info("状态更新", zap.String("status", status))
}

// SetBalances 设置余额显示
func (d *ConsoleDisplay) SetBalances(player1, player2 float64) {
	d.logger.Info("余额更新",
		zap.String("player1", FormatBalance(1, player1)),
		zap.String("player2", FormatBalance(2, player2)))
}
