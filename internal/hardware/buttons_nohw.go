//go:build nogpiohw

package hardware

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Woody4618/raspberry-token-minter/internal/config"
	apperrors "github.com/Woody4618/raspberry-token-minter/internal/errors"
	"github.com/Woody4618/raspberry-token-minter/internal/logger"
)

// GPIOButtonSource GPIO按键事件源（无硬件支持的占位实现）
// 使用 -tags nogpiohw 构建时生效，用于在非Linux环境编译
type GPIOButtonSource struct {
	config  *config.GPIOConfig
	handler ButtonHandler
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewGPIOButtonSource 创建GPIO按键事件源（占位）
func NewGPIOButtonSource(cfg *config.GPIOConfig) *GPIOButtonSource {
	return &GPIOButtonSource{
		config: cfg,
		logger: logger.GetModuleLogger("gpio"),
	}
}

// RegisterHandler 注册按键回调
func (s *GPIOButtonSource) RegisterHandler(handler ButtonHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Start 占位实现，无硬件支持时返回错误
func (s *GPIOButtonSource) Start() error {
	s.logger.Warn("GPIO硬件支持未编译（nogpiohw），请使用gpio.mock_mode")
	return apperrors.Newf(apperrors.ErrGPIOChipOpen, "GPIO硬件支持未编译")
}

// Stop 占位实现
func (s *GPIOButtonSource) Stop() error {
	return nil
}
