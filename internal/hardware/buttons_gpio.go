//go:build !nogpiohw

package hardware

import (
	"sync"

	"github.com/warthog618/gpiod"
	"go.uber.org/zap"

	"github.com/Woody4618/raspberry-token-minter/internal/config"
	apperrors "github.com/Woody4618/raspberry-token-minter/internal/errors"
	"github.com/Woody4618/raspberry-token-minter/internal/logger"
)

// GPIOButtonSource 树莓派GPIO按键事件源
// 使用内部上拉，按键接地，下降沿触发，内核去抖
type GPIOButtonSource struct {
	config  *config.GPIOConfig
	chip    *gpiod.Chip
	lines   []*gpiod.Line
	handler ButtonHandler
	mu      sync.Mutex
	running bool
	logger  *zap.Logger
}

// NewGPIOButtonSource 创建GPIO按键事件源
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

// Start 打开GPIO芯片并申请按键输入线
func (s *GPIOButtonSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	chip, err := gpiod.NewChip(s.config.Chip, gpiod.WithConsumer(s.config.Consumer))
	if err != nil {
		s.logger.Error("打开GPIO芯片失败",
			zap.String("chip", s.config.Chip),
			zap.Error(err))
		return apperrors.Wrapf(err, apperrors.ErrGPIOChipOpen, "打开GPIO芯片 %s 失败", s.config.Chip)
	}
	s.chip = chip

	pins := []struct {
		pin    int
		button Button
	}{
		{s.config.Button1Pin, ButtonPlayer1},
		{s.config.Button2Pin, ButtonPlayer2},
	}

	for _, p := range pins {
		button := p.button
		line, err := chip.RequestLine(p.pin,
			gpiod.AsInput,
			gpiod.WithPullUp,
			gpiod.WithDebounce(s.config.Debounce),
			gpiod.WithFallingEdge,
			gpiod.WithEventHandler(func(evt gpiod.LineEvent) {
				s.dispatch(button, evt)
			}))
		if err != nil {
			s.closeLines()
			s.chip.Close()
			s.chip = nil
			s.logger.Error("申请GPIO输入线失败",
				zap.Int("pin", p.pin),
				zap.String("button", button.String()),
				zap.Error(err))
			return apperrors.Wrapf(err, apperrors.ErrGPIORequest, "申请GPIO %d 失败", p.pin)
		}
		s.lines = append(s.lines, line)
	}

	s.running = true
	s.logger.Info("GPIO按键监听已启动",
		zap.String("chip", s.config.Chip),
		zap.Int("button1_pin", s.config.Button1Pin),
		zap.Int("button2_pin", s.config.Button2Pin),
		zap.Duration("debounce", s.config.Debounce))

	return nil
}

// Stop 停止监听并释放GPIO资源
func (s *GPIOButtonSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.closeLines()

	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			s.logger.Warn("关闭GPIO芯片失败", zap.Error(err))
		}
		s.chip = nil
	}

	s.running = false
	s.logger.Info("GPIO按键监听已停止")

	return nil
}

func (s *GPIOButtonSource) closeLines() {
	for _, line := range s.lines {
		line.Close()
	}
	s.lines = nil
}

// dispatch 分发按键事件
// 在gpiod事件协程中执行，回调必须立即返回
func (s *GPIOButtonSource) dispatch(button Button, evt gpiod.LineEvent) {
	if evt.Type != gpiod.LineEventFallingEdge {
		return
	}

	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	if handler == nil {
		return
	}

	logger.LogButtonPress(button.String(), evt.Offset)
	handler(button)
}
