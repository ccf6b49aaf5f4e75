package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestButtonString 按键名称
func TestButtonString(t *testing.T) {
	assert.Equal(t, "button1", ButtonPlayer1.String())
	assert.Equal(t, "button2", ButtonPlayer2.String())
	assert.Equal(t, "unknown", Button(99).String())
}

// TestMockButtonSource 模拟按键事件源分发事件
func TestMockButtonSource(t *testing.T) {
	source := NewMockButtonSource()

	var pressed []Button
	source.RegisterHandler(func(b Button) {
		pressed = append(pressed, b)
	})

	// 未启动时不分发
	source.Press(ButtonPlayer1)
	assert.Empty(t, pressed)

	require.NoError(t, source.Start())

	source.Press(ButtonPlayer1)
	source.Press(ButtonPlayer2)
	source.Press(ButtonPlayer1)
	assert.Equal(t, []Button{ButtonPlayer1, ButtonPlayer2, ButtonPlayer1}, pressed)

	// 停止后不再分发
	require.NoError(t, source.Stop())
	source.Press(ButtonPlayer2)
	assert.Len(t, pressed, 3)
}

// TestMockButtonSourceNoHandler 未注册回调时忽略事件
func TestMockButtonSourceNoHandler(t *testing.T) {
	source := NewMockButtonSource()
	require.NoError(t, source.Start())

	assert.NotPanics(t, func() {
		source.Press(ButtonPlayer1)
	})
}
