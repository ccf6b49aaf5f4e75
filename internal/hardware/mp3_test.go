package hardware

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Woody4618/raspberry-token-minter/internal/config"
	apperrors "github.com/Woody4618/raspberry-token-minter/internal/errors"
)

// fakeSerialPort 模拟串口，记录写入的字节
type fakeSerialPort struct {
	mu       sync.Mutex
	written  []byte
	readData []byte
	readErr  error
	writeErr error
	closed   bool
}

func (f *fakeSerialPort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakeSerialPort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	n := copy(p, f.readData)
	f.readData = f.readData[n:]
	return n, nil
}

func (f *fakeSerialPort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSerialPort) Flush() error { return nil }

func (f *fakeSerialPort) writtenBytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(f.written))
	copy(out, f.written)
	return out
}

func testSerialConfig() *config.SerialConfig {
	return &config.SerialConfig{
		Port:            "/dev/serial0",
		BaudRate:        9600,
		DataBits:        8,
		StopBits:        1,
		Parity:          "N",
		ReadTimeout:     time.Second,
		GuardDelay:      time.Millisecond,
		StatusReadDelay: time.Millisecond,
	}
}

// connectedPlayer 创建已注入模拟串口的控制器
func connectedPlayer() (*MP3Player, *fakeSerialPort) {
	port := &fakeSerialPort{}
	player := NewMP3Player(testSerialConfig())
	player.port = port
	player.connected = true
	return player, port
}

// TestMP3PlayerNotConnected 未连接时所有命令返回错误且不写串口
func TestMP3PlayerNotConnected(t *testing.T) {
	player := NewMP3Player(testSerialConfig())

	ops := map[string]func() error{
		"PlayTrack": func() error { return player.PlayTrack(3) },
		"SetVolume": func() error { return player.SetVolume(20) },
		"Pause":     func() error { return player.Pause() },
		"Resume":    func() error { return player.Resume() },
		"Stop":      func() error { return player.Stop() },
		"Next":      func() error { return player.Next() },
		"Previous":  func() error { return player.Previous() },
		"Random":    func() error { return player.Random() },
		"SetLoop":   func() error { return player.SetLoop(true) },
	}

	for name, op := range ops {
		err := op()
		require.Error(t, err, name)
		assert.Equal(t, apperrors.ErrSerialNotConnected, apperrors.GetCode(err), name)
	}

	_, err := player.GetStatus()
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrSerialNotConnected, apperrors.GetCode(err))

	assert.False(t, player.IsConnected())
}

// TestMP3PlayerRangeValidation 参数超出范围时拒绝发送且不写串口
func TestMP3PlayerRangeValidation(t *testing.T) {
	tests := []struct {
		name string
		op   func(p *MP3Player) error
	}{
		{"曲目为0", func(p *MP3Player) error { return p.PlayTrack(0) }},
		{"曲目超上限", func(p *MP3Player) error { return p.PlayTrack(256) }},
		{"曲目为负", func(p *MP3Player) error { return p.PlayTrack(-1) }},
		{"音量为负", func(p *MP3Player) error { return p.SetVolume(-1) }},
		{"音量超上限", func(p *MP3Player) error { return p.SetVolume(31) }},
		{"文件夹为0", func(p *MP3Player) error { return p.PlayFolderTrack(0, 1) }},
		{"文件夹超上限", func(p *MP3Player) error { return p.PlayFolderTrack(100, 1) }},
		{"文件夹内曲目为0", func(p *MP3Player) error { return p.PlayFolderTrack(1, 0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player, port := connectedPlayer()

			err := tt.op(player)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrParamOutOfRange, apperrors.GetCode(err))
			assert.Empty(t, port.writtenBytes(), "超范围参数不应写入串口")
		})
	}
}

// TestMP3PlayerSendFrames 命令写入完整的10字节帧
func TestMP3PlayerSendFrames(t *testing.T) {
	t.Run("播放曲目", func(t *testing.T) {
		player, port := connectedPlayer()

		require.NoError(t, player.PlayTrack(3))

		written := port.writtenBytes()
		require.Len(t, written, FrameSize)
		assert.Equal(t, []byte{0x7E, 0xFF, 0x06, 0x03, 0x00, 0x00, 0x03, 0xFE, 0xF5, 0xEF}, written)
	})

	t.Run("设置音量", func(t *testing.T) {
		player, port := connectedPlayer()

		require.NoError(t, player.SetVolume(20))

		written := port.writtenBytes()
		require.Len(t, written, FrameSize)
		assert.Equal(t, []byte{0x7E, 0xFF, 0x06, 0x06, 0x00, 0x00, 0x14, 0xFE, 0xE1, 0xEF}, written)
	})

	t.Run("边界音量", func(t *testing.T) {
		player, port := connectedPlayer()

		require.NoError(t, player.SetVolume(0))
		require.NoError(t, player.SetVolume(30))

		written := port.writtenBytes()
		assert.Len(t, written, 2*FrameSize)
	})

	t.Run("暂停与上一曲同帧", func(t *testing.T) {
		p1, port1 := connectedPlayer()
		p2, port2 := connectedPlayer()

		require.NoError(t, p1.Pause())
		require.NoError(t, p2.Previous())

		assert.Equal(t, port2.writtenBytes(), port1.writtenBytes())
	})

	t.Run("写入失败返回错误", func(t *testing.T) {
		player, port := connectedPlayer()
		port.writeErr = io.ErrClosedPipe

		err := player.PlayTrack(1)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrSerialPortWrite, apperrors.GetCode(err))
	})
}

// TestMP3PlayerGetStatus 状态查询发送命令帧并返回原始应答
func TestMP3PlayerGetStatus(t *testing.T) {
	t.Run("有应答", func(t *testing.T) {
		player, port := connectedPlayer()
		port.readData = []byte{0x7E, 0xFF, 0x06, 0x42, 0x00, 0x00, 0x02, 0xFE, 0xB7, 0xEF}

		resp, err := player.GetStatus()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x7E, 0xFF, 0x06, 0x42, 0x00, 0x00, 0x02, 0xFE, 0xB7, 0xEF}, resp)

		// 先发送了查询命令帧
		written := port.writtenBytes()
		require.Len(t, written, FrameSize)
		assert.Equal(t, byte(CmdGetStatus), written[3])
	})

	t.Run("读超时视为无应答", func(t *testing.T) {
		player, port := connectedPlayer()
		port.readErr = io.EOF

		resp, err := player.GetStatus()
		require.NoError(t, err)
		assert.Empty(t, resp)
	})
}

// TestMP3PlayerDisconnect 断开后命令被拒绝，重复断开无副作用
func TestMP3PlayerDisconnect(t *testing.T) {
	player, port := connectedPlayer()

	require.NoError(t, player.Disconnect())
	assert.True(t, port.closed)
	assert.False(t, player.IsConnected())

	require.NoError(t, player.Disconnect())

	err := player.PlayTrack(3)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrSerialNotConnected, apperrors.GetCode(err))
}

// TestMockMP3Controller 模拟控制器记录播放历史
func TestMockMP3Controller(t *testing.T) {
	mock := NewMockMP3Controller()

	// 未连接时拒绝命令
	err := mock.PlayTrack(3)
	require.Error(t, err)

	require.NoError(t, mock.Connect())
	assert.True(t, mock.IsConnected())

	require.NoError(t, mock.PlayTrack(3))
	require.NoError(t, mock.PlayTrack(2))
	require.NoError(t, mock.SetVolume(20))

	assert.Equal(t, []int{3, 2}, mock.PlayedTracks)
	assert.Equal(t, 20, mock.Volume)
	assert.Len(t, mock.SentFrames, 3)

	// 注入播放错误
	mock.PlayErr = io.ErrUnexpectedEOF
	assert.Error(t, mock.PlayTrack(1))

	mock.PlayErr = nil
	require.NoError(t, mock.Disconnect())
	assert.False(t, mock.IsConnected())
}
