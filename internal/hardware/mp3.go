package hardware

import (
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Woody4618/raspberry-token-minter/internal/config"
	apperrors "github.com/Woody4618/raspberry-token-minter/internal/errors"
	"github.com/Woody4618/raspberry-token-minter/internal/logger"
)

// MP3Controller MP3播放模块控制接口
type MP3Controller interface {
	// Connect 连接串口
	Connect() error
	// Disconnect 断开串口
	Disconnect() error
	// IsConnected 检查连接状态
	IsConnected() bool

	// PlayTrack 播放指定曲目（1-255）
	PlayTrack(track int) error
	// PlayFolderTrack 播放指定文件夹内曲目（文件夹1-99，曲目1-255）
	PlayFolderTrack(folder, track int) error
	// SetVolume 设置音量（0-30）
	SetVolume(volume int) error
	// Pause 暂停播放
	Pause() error
	// Resume 恢复播放
	Resume() error
	// Stop 停止播放
	Stop() error
	// Next 下一曲
	Next() error
	// Previous 上一曲
	Previous() error
	// Random 随机播放
	Random() error
	// SetLoop 设置单曲循环
	SetLoop(enable bool) error
	// GetStatus 查询模块状态，返回原始应答字节
	GetStatus() ([]byte, error)
}

// MP3Player MP3播放模块控制器实现
type MP3Player struct {
	config    *config.SerialConfig
	port      SerialPort
	connected bool
	mu        sync.Mutex
	logger    *zap.Logger
}

// NewMP3Player 创建MP3控制器
func NewMP3Player(cfg *config.SerialConfig) *MP3Player {
	return &MP3Player{
		config: cfg,
		logger: logger.GetModuleLogger("hardware"),
	}
}

// Connect 连接串口
func (p *MP3Player) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return nil
	}

	port, err := openSerialPort(SerialOptions{
		Port:        p.config.Port,
		BaudRate:    p.config.BaudRate,
		DataBits:    p.config.DataBits,
		StopBits:    p.config.StopBits,
		Parity:      p.config.Parity,
		ReadTimeout: p.config.ReadTimeout,
	})
	if err != nil {
		p.logger.Error("打开串口失败",
			zap.String("port", p.config.Port),
			zap.Int("baud_rate", p.config.BaudRate),
			zap.Error(err))
		return apperrors.Wrapf(err, apperrors.ErrSerialPortOpen, "打开串口 %s 失败", p.config.Port)
	}

	p.port = port
	p.connected = true

	p.logger.Info("MP3模块串口连接成功",
		zap.String("port", p.config.Port),
		zap.Int("baud_rate", p.config.BaudRate))

	return nil
}

// Disconnect 断开串口
func (p *MP3Player) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil
	}

	if p.port != nil {
		if err := p.port.Close(); err != nil {
			p.logger.Warn("关闭串口失败", zap.Error(err))
		}
		p.port = nil
	}

	p.connected = false
	p.logger.Info("MP3模块串口已断开", zap.String("port", p.config.Port))

	return nil
}

// IsConnected 检查连接状态
func (p *MP3Player) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// sendFrame 发送一帧命令
// 写入后等待保护间隔，避免模块连续收帧丢命令
func (p *MP3Player) sendFrame(frame *Frame, desc string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return apperrors.New(apperrors.ErrSerialNotConnected)
	}

	data := frame.ToBytes()
	if _, err := p.port.Write(data); err != nil {
		p.logger.Error("发送MP3命令失败",
			zap.String("command", desc),
			zap.Error(err))
		return apperrors.Wrapf(err, apperrors.ErrSerialPortWrite, "发送%s命令失败", desc)
	}

	logger.LogSerialFrame("tx", data)
	p.logger.Debug("MP3命令已发送",
		zap.String("command", desc),
		zap.String("frame", hex.EncodeToString(data)))

	time.Sleep(p.config.GuardDelay)

	return nil
}

// PlayTrack 播放指定曲目
func (p *MP3Player) PlayTrack(track int) error {
	if track < MinTrack || track > MaxTrack {
		p.logger.Warn("曲目编号超出范围", zap.Int("track", track))
		return apperrors.Newf(apperrors.ErrParamOutOfRange, "曲目编号 %d 超出范围 [%d, %d]", track, MinTrack, MaxTrack)
	}

	return p.sendFrame(NewFrame(CmdPlayTrack, 0x00, byte(track)), "播放曲目")
}

// PlayFolderTrack 播放指定文件夹内曲目
func (p *MP3Player) PlayFolderTrack(folder, track int) error {
	if folder < MinFolder || folder > MaxFolder {
		p.logger.Warn("文件夹编号超出范围", zap.Int("folder", folder))
		return apperrors.Newf(apperrors.ErrParamOutOfRange, "文件夹编号 %d 超出范围 [%d, %d]", folder, MinFolder, MaxFolder)
	}
	if track < MinTrack || track > MaxTrack {
		p.logger.Warn("曲目编号超出范围", zap.Int("track", track))
		return apperrors.Newf(apperrors.ErrParamOutOfRange, "曲目编号 %d 超出范围 [%d, %d]", track, MinTrack, MaxTrack)
	}

	return p.sendFrame(NewFrame(CmdPlayFolderTrack, byte(folder), byte(track)), "播放文件夹曲目")
}

// SetVolume 设置音量
func (p *MP3Player) SetVolume(volume int) error {
	if volume < MinVolume || volume > MaxVolume {
		p.logger.Warn("音量超出范围", zap.Int("volume", volume))
		return apperrors.Newf(apperrors.ErrParamOutOfRange, "音量 %d 超出范围 [%d, %d]", volume, MinVolume, MaxVolume)
	}

	return p.sendFrame(NewFrame(CmdSetVolume, 0x00, byte(volume)), "设置音量")
}

// Pause 暂停播放
// 注意：该固件版本暂停与上一曲共用命令码0x02
func (p *MP3Player) Pause() error {
	return p.sendFrame(NewFrame(CmdPause, 0x00, 0x00), "暂停")
}

// Resume 恢复播放
func (p *MP3Player) Resume() error {
	return p.sendFrame(NewFrame(CmdResume, 0x00, 0x00), "恢复播放")
}

// Stop 停止播放
func (p *MP3Player) Stop() error {
	return p.sendFrame(NewFrame(CmdStop, 0x00, 0x00), "停止")
}

// Next 下一曲
func (p *MP3Player) Next() error {
	return p.sendFrame(NewFrame(CmdNext, 0x00, 0x00), "下一曲")
}

// Previous 上一曲
func (p *MP3Player) Previous() error {
	return p.sendFrame(NewFrame(CmdPrevious, 0x00, 0x00), "上一曲")
}

// Random 随机播放
func (p *MP3Player) Random() error {
	return p.sendFrame(NewFrame(CmdRandom, 0x00, 0x00), "随机播放")
}

// SetLoop 设置单曲循环
func (p *MP3Player) SetLoop(enable bool) error {
	var param byte
	desc := "关闭循环"
	if enable {
		param = 0x01
		desc = "开启循环"
	}

	return p.sendFrame(NewFrame(CmdLoop, 0x00, param), desc)
}

// GetStatus 查询模块状态
// 发送查询命令后等待一段时间，读取模块返回的原始字节（不解析内容）
func (p *MP3Player) GetStatus() ([]byte, error) {
	if err := p.sendFrame(NewFrame(CmdGetStatus, 0x00, 0x00), "查询状态"); err != nil {
		return nil, err
	}

	time.Sleep(p.config.StatusReadDelay)

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, apperrors.New(apperrors.ErrSerialNotConnected)
	}

	buf := make([]byte, 64)
	n, err := p.port.Read(buf)
	if err != nil && n == 0 {
		// 读超时视为无应答
		p.logger.Debug("MP3状态查询无应答", zap.Error(err))
		return nil, nil
	}

	resp := buf[:n]
	logger.LogSerialFrame("rx", resp)
	p.logger.Debug("MP3状态应答", zap.String("frame", hex.EncodeToString(resp)))

	return resp, nil
}

// MockMP3Controller 模拟MP3控制器（用于测试和无硬件环境）
type MockMP3Controller struct {
	connected      bool
	mu             sync.Mutex
	logger         *zap.Logger
	SentFrames     [][]byte
	PlayedTracks   []int
	Volume         int
	StatusResponse []byte
	PlayErr        error
}

// NewMockMP3Controller 创建模拟MP3控制器
func NewMockMP3Controller() *MockMP3Controller {
	return &MockMP3Controller{
		logger: logger.GetModuleLogger("hardware"),
	}
}

// Connect 模拟连接
func (m *MockMP3Controller) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	m.logger.Info("模拟MP3模块已连接")
	return nil
}

// Disconnect 模拟断开
func (m *MockMP3Controller) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.logger.Info("模拟MP3模块已断开")
	return nil
}

// IsConnected 检查连接状态
func (m *MockMP3Controller) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMP3Controller) record(frame *Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return apperrors.New(apperrors.ErrSerialNotConnected)
	}
	if m.PlayErr != nil {
		return m.PlayErr
	}

	m.SentFrames = append(m.SentFrames, frame.ToBytes())
	return nil
}

// PlayTrack 模拟播放曲目
func (m *MockMP3Controller) PlayTrack(track int) error {
	if err := m.record(NewFrame(CmdPlayTrack, 0x00, byte(track))); err != nil {
		return err
	}

	m.mu.Lock()
	m.PlayedTracks = append(m.PlayedTracks, track)
	m.mu.Unlock()

	m.logger.Info("模拟播放曲目", zap.Int("track", track))
	return nil
}

// PlayFolderTrack 模拟播放文件夹曲目
func (m *MockMP3Controller) PlayFolderTrack(folder, track int) error {
	return m.record(NewFrame(CmdPlayFolderTrack, byte(folder), byte(track)))
}

// SetVolume 模拟设置音量
func (m *MockMP3Controller) SetVolume(volume int) error {
	if err := m.record(NewFrame(CmdSetVolume, 0x00, byte(volume))); err != nil {
		return err
	}

	m.mu.Lock()
	m.Volume = volume
	m.mu.Unlock()
	return nil
}

// Pause 模拟暂停
func (m *MockMP3Controller) Pause() error {
	return m.record(NewFrame(CmdPause, 0x00, 0x00))
}

// Resume 模拟恢复播放
func (m *MockMP3Controller) Resume() error {
	return m.record(NewFrame(CmdResume, 0x00, 0x00))
}

// Stop 模拟停止
func (m *MockMP3Controller) Stop() error {
	return m.record(NewFrame(CmdStop, 0x00, 0x00))
}

// Next 模拟下一曲
func (m *MockMP3Controller) Next() error {
	return m.record(NewFrame(CmdNext, 0x00, 0x00))
}

// Previous 模拟上一曲
func (m *MockMP3Controller) Previous() error {
	return m.record(NewFrame(CmdPrevious, 0x00, 0x00))
}

// Random 模拟随机播放
func (m *MockMP3Controller) Random() error {
	return m.record(NewFrame(CmdRandom, 0x00, 0x00))
}

// SetLoop 模拟设置循环
func (m *MockMP3Controller) SetLoop(enable bool) error {
	var param byte
	if enable {
		param = 0x01
	}
	return m.record(NewFrame(CmdLoop, 0x00, param))
}

// GetStatus 模拟状态查询
func (m *MockMP3Controller) GetStatus() ([]byte, error) {
	if err := m.record(NewFrame(CmdGetStatus, 0x00, 0x00)); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StatusResponse, nil
}

// Played 返回已播放曲目的快照
func (m *MockMP3Controller) Played() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.PlayedTracks...)
}
