package hardware

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Woody4618/raspberry-token-minter/internal/logger"
)

// Button 实体按键编号
type Button int

const (
	// ButtonPlayer1 玩家1按键
	ButtonPlayer1 Button = 1
	// ButtonPlayer2 玩家2按键
	ButtonPlayer2 Button = 2
)

// String 返回按键名称
func (b Button) String() string {
	switch b {
	case ButtonPlayer1:
		return "button1"
	case ButtonPlayer2:
		return "button2"
	default:
		return "unknown"
	}
}

// ButtonHandler 按键按下回调
// 回调在事件协程中执行，必须立即返回，不得阻塞
type ButtonHandler func(button Button)

// ButtonSource 按键事件源
type ButtonSource interface {
	// RegisterHandler 注册按键回调（需在Start之前调用）
	RegisterHandler(handler ButtonHandler)
	// Start 开始监听按键事件
	Start() error
	// Stop 停止监听并释放资源
	Stop() error
}

// MockButtonSource 模拟按键事件源（用于测试和无硬件环境）
type MockButtonSource struct {
	mu      sync.Mutex
	handler ButtonHandler
	running bool
	logger  *zap.Logger
}

// NewMockButtonSource 创建模拟按键事件源
func NewMockButtonSource() *MockButtonSource {
	return &MockButtonSource{
		logger: logger.GetModuleLogger("gpio"),
	}
}

// RegisterHandler 注册按键回调
func (m *MockButtonSource) RegisterHandler(handler ButtonHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Start 开始监听
func (m *MockButtonSource) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	m.logger.Info("模拟按键事件源已启动")
	return nil
}

// Stop 停止监听
func (m *MockButtonSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.logger.Info("模拟按键事件源已停止")
	return nil
}

// Press 模拟一次按键按下
func (m *MockButtonSource) Press(button Button) {
	m.mu.Lock()
	handler := m.handler
	running := m.running
	m.mu.Unlock()

	if !running || handler == nil {
		return
	}

	m.logger.Debug("模拟按键按下", zap.String("button", button.String()))
	handler(button)
}
