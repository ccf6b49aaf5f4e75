package kiosk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/Woody4618/raspberry-token-minter/internal/chain"
	"github.com/Woody4618/raspberry-token-minter/internal/config"
	"github.com/Woody4618/raspberry-token-minter/internal/display"
	apperrors "github.com/Woody4618/raspberry-token-minter/internal/errors"
	"github.com/Woody4618/raspberry-token-minter/internal/hardware"
	"github.com/Woody4618/raspberry-token-minter/internal/logger"
	"github.com/Woody4618/raspberry-token-minter/internal/models"
	"github.com/Woody4618/raspberry-token-minter/internal/repository"
	"github.com/Woody4618/raspberry-token-minter/internal/websocket"
)

// TokenMinter 铸币执行接口
type TokenMinter interface {
	// MintTo 为指定玩家执行完整铸币流程
	MintTo(ctx context.Context, player chain.Player) *chain.MintResult
	// RefreshBalances 查询两名玩家的链上余额并推送状态屏
	RefreshBalances(ctx context.Context) chain.BalanceState
	// WalletFor 返回玩家的目标钱包地址
	WalletFor(player chain.Player) solana.PublicKey
}

// mintRequest 一次铸币请求
type mintRequest struct {
	player  chain.Player
	trigger models.MintTrigger
}

// Coordinator 机台协调器
// 统一管理按键、音效、铸币和状态屏的生命周期，
// 并保证同一时刻只有一个铸币流程在执行，进行中收到的新请求直接丢弃
type Coordinator struct {
	mu     sync.RWMutex
	logger *zap.Logger
	config *config.Config

	// 硬件控制器（Initialize时根据配置创建）
	mp3     hardware.MP3Controller
	buttons hardware.ButtonSource

	// 核心组件
	minter   TokenMinter
	balances *chain.BalanceTracker
	records  *repository.MintRecordRepository
	hub      *websocket.Hub
	queue    *display.Queue
	renderer *display.Renderer

	// 铸币请求队列，busy置位后才允许入队
	requests chan mintRequest
	busy     atomic.Bool

	// 运行状态
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	// 统计信息
	stats *Stats
}

// Stats 协调器运行统计
type Stats struct {
	mu sync.RWMutex

	StartTime        time.Time
	Uptime           time.Duration
	Button1Presses   int64
	Button2Presses   int64
	MintRequests     int64
	MintDropped      int64 // 铸币进行中被忽略的请求
	MintSuccess      int64
	MintNotConfirmed int64
	MintFailed       int64
	LastMintTime     time.Time
	LastError        string
	LastErrorTime    time.Time
}

// NewCoordinator 创建机台协调器
func NewCoordinator(
	cfg *config.Config,
	minter TokenMinter,
	balances *chain.BalanceTracker,
	records *repository.MintRecordRepository,
	hub *websocket.Hub,
	queue *display.Queue,
	renderer *display.Renderer,
) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		logger:   logger.GetModuleLogger("kiosk"),
		config:   cfg,
		minter:   minter,
		balances: balances,
		records:  records,
		hub:      hub,
		queue:    queue,
		renderer: renderer,
		requests: make(chan mintRequest, 1),
		ctx:      ctx,
		cancel:   cancel,
		stats:    &Stats{},
	}
}

// Initialize 根据配置创建硬件控制器
func (c *Coordinator) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.Serial.Enabled {
		if c.config.Serial.MockMode {
			c.logger.Info("串口调试模式，使用模拟MP3控制器")
			c.mp3 = hardware.NewMockMP3Controller()
		} else {
			c.logger.Info("初始化MP3控制器", zap.String("port", c.config.Serial.Port))
			c.mp3 = hardware.NewMP3Player(&c.config.Serial)
		}
	} else {
		c.logger.Info("音效模块未启用")
	}

	if c.config.GPIO.Enabled {
		if c.config.GPIO.MockMode {
			c.logger.Info("GPIO调试模式，使用模拟按键源")
			c.buttons = hardware.NewMockButtonSource()
		} else {
			c.logger.Info("初始化GPIO按键源",
				zap.String("chip", c.config.GPIO.Chip),
				zap.Int("button1_pin", c.config.GPIO.Button1Pin),
				zap.Int("button2_pin", c.config.GPIO.Button2Pin))
			c.buttons = hardware.NewGPIOButtonSource(&c.config.GPIO)
		}
	} else {
		c.logger.Info("实体按键未启用")
	}

	return nil
}

// Start 启动协调器
// 音效模块连接失败时降级运行（没有声音），按键监听启动失败则整体失败
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return apperrors.New(apperrors.ErrAlreadyExists, "协调器已在运行")
	}

	if c.mp3 != nil {
		if err := c.mp3.Connect(); err != nil {
			c.logger.Warn("MP3模块连接失败，继续运行但没有音效", zap.Error(err))
		} else if err := c.mp3.SetVolume(c.config.Audio.Volume); err != nil {
			c.logger.Warn("设置音量失败", zap.Error(err))
		}
	}

	if c.buttons != nil {
		c.buttons.RegisterHandler(c.onButtonPress)
		if err := c.buttons.Start(); err != nil {
			if c.mp3 != nil && c.mp3.IsConnected() {
				_ = c.mp3.Disconnect()
			}
			return apperrors.Wrap(err, apperrors.ErrGPIORequest, "按键监听启动失败")
		}
	}

	c.running = true
	c.stats.mu.Lock()
	c.stats.StartTime = time.Now()
	c.stats.mu.Unlock()

	c.renderer.Start()

	// 开机先把当前余额刷上状态屏，RPC较慢时不阻塞启动
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.minter.RefreshBalances(c.ctx)
	}()

	c.wg.Add(1)
	go c.mintLoop()

	c.wg.Add(1)
	go c.monitorLoop()

	c.logger.Info("机台协调器已启动",
		zap.Bool("audio", c.mp3 != nil && c.mp3.IsConnected()),
		zap.Bool("buttons", c.buttons != nil))

	return nil
}

// Stop 停止协调器，按启动的相反顺序释放资源
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	c.cancel()

	if c.buttons != nil {
		if err := c.buttons.Stop(); err != nil {
			c.logger.Error("停止按键监听失败", zap.Error(err))
		}
	}

	if c.mp3 != nil && c.mp3.IsConnected() {
		if err := c.mp3.Stop(); err != nil {
			c.logger.Warn("停止播放失败", zap.Error(err))
		}
		if err := c.mp3.Disconnect(); err != nil {
			c.logger.Error("断开MP3模块失败", zap.Error(err))
		}
	}

	c.wg.Wait()

	// 渲染器最后停，把队列里剩余的终态信息刷完
	c.renderer.Stop()

	c.logger.Info("机台协调器已停止")
	return nil
}

// IsRunning 检查协调器是否在运行
func (c *Coordinator) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// RequestMint 请求为指定玩家铸币
// 非阻塞，已有铸币流程在执行时返回ErrMintBusy并丢弃本次请求
func (c *Coordinator) RequestMint(player chain.Player, trigger models.MintTrigger) error {
	if player != chain.Player1 && player != chain.Player2 {
		return apperrors.Newf(apperrors.ErrInvalidParam, "无效的玩家编号: %d", player)
	}

	c.mu.RLock()
	running := c.running
	c.mu.RUnlock()
	if !running {
		return apperrors.New(apperrors.ErrCanceled, "协调器未运行")
	}

	if !c.busy.CompareAndSwap(false, true) {
		c.stats.mu.Lock()
		c.stats.MintDropped++
		c.stats.mu.Unlock()
		return apperrors.Newf(apperrors.ErrMintBusy, "%s的铸币尚未完成", player.Label())
	}

	// busy置位后队列必为空，入队不会阻塞
	c.requests <- mintRequest{player: player, trigger: trigger}
	return nil
}

// RequestRefresh 主动刷新两名玩家的余额并推送状态屏
func (c *Coordinator) RequestRefresh() (chain.BalanceState, error) {
	c.mu.RLock()
	running := c.running
	c.mu.RUnlock()
	if !running {
		return chain.BalanceState{}, apperrors.New(apperrors.ErrCanceled, "协调器未运行")
	}

	return c.minter.RefreshBalances(c.ctx), nil
}

// Balances 返回最近一次查询到的余额
func (c *Coordinator) Balances() chain.BalanceState {
	return c.balances.Get()
}

// onButtonPress 按键回调，必须立即返回
func (c *Coordinator) onButtonPress(button hardware.Button) {
	player := chain.Player1
	if button == hardware.ButtonPlayer2 {
		player = chain.Player2
	}

	c.stats.mu.Lock()
	if button == hardware.ButtonPlayer2 {
		c.stats.Button2Presses++
	} else {
		c.stats.Button1Presses++
	}
	c.stats.mu.Unlock()

	c.logger.Info("按键按下", zap.String("button", button.String()))

	if err := c.RequestMint(player, models.MintTriggerButton); err != nil {
		c.logger.Info("按键请求被忽略", zap.String("button", button.String()), zap.Error(err))
	}
}

// mintLoop 铸币工作协程，串行处理请求
func (c *Coordinator) mintLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case req := <-c.requests:
			c.handleMint(req)
		}
	}
}

// handleMint 执行一次铸币并记录结果
func (c *Coordinator) handleMint(req mintRequest) {
	defer c.busy.Store(false)

	c.stats.mu.Lock()
	c.stats.MintRequests++
	c.stats.mu.Unlock()

	c.logger.Info("处理铸币请求",
		zap.String("player", req.player.Label()),
		zap.String("trigger", string(req.trigger)))

	// 音效与铸币是同一触发下的两个独立任务，互不等待
	go c.playMintSound(req.player)

	result := c.minter.MintTo(c.ctx, req.player)

	c.recordOutcome(result)
	c.persistResult(req, result)
	c.broadcastResult(req, result)
}

// playMintSound 播放铸币音效
func (c *Coordinator) playMintSound(player chain.Player) {
	c.mu.RLock()
	mp3 := c.mp3
	c.mu.RUnlock()

	if mp3 == nil || !mp3.IsConnected() {
		return
	}

	track := c.config.Audio.Button1Track
	if player == chain.Player2 {
		track = c.config.Audio.Button2Track
	}

	if err := mp3.PlayTrack(track); err != nil {
		c.logger.Warn("播放音效失败", zap.Int("track", track), zap.Error(err))
	}
}

// recordOutcome 更新统计计数
func (c *Coordinator) recordOutcome(result *chain.MintResult) {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()

	c.stats.LastMintTime = time.Now()
	switch result.Outcome {
	case chain.OutcomeSuccess:
		c.stats.MintSuccess++
	case chain.OutcomeNotConfirmed:
		c.stats.MintNotConfirmed++
	default:
		c.stats.MintFailed++
	}

	if result.Err != nil {
		c.stats.LastError = result.Err.Error()
		c.stats.LastErrorTime = time.Now()
	}
}

// persistResult 把铸币结果写入审计记录
func (c *Coordinator) persistResult(req mintRequest, result *chain.MintResult) {
	if c.records == nil {
		return
	}

	record := &models.MintRecord{
		OrderNo:        result.OrderNo,
		Player:         int(result.Player),
		Label:          result.Player.Label(),
		Trigger:        req.trigger,
		Wallet:         result.Wallet.String(),
		CreatedAccount: result.CreatedAccount,
		Amount:         c.config.Chain.MintAmount,
		Status:         models.MintStatus(result.Outcome),
		Duration:       result.Duration.Milliseconds(),
	}
	if !result.TokenAccount.IsZero() {
		record.TokenAccount = result.TokenAccount.String()
	}
	if !result.CreateSignature.IsZero() {
		record.CreateSignature = result.CreateSignature.String()
	}
	if !result.MintSignature.IsZero() {
		record.MintSignature = result.MintSignature.String()
	}
	if result.Err != nil {
		record.ErrorMsg = result.Err.Error()
	}

	if err := c.records.Create(record); err != nil {
		c.logger.Error("铸币记录写入失败",
			zap.String("order_no", result.OrderNo),
			zap.Error(err))
	}
}

// broadcastResult 把铸币结果推送给所有仪表盘连接
func (c *Coordinator) broadcastResult(req mintRequest, result *chain.MintResult) {
	if c.hub == nil {
		return
	}

	payload := websocket.MintResultPayload{
		OrderNo:        result.OrderNo,
		Player:         int(result.Player),
		Label:          result.Player.Label(),
		Trigger:        string(req.trigger),
		Status:         string(result.Outcome),
		CreatedAccount: result.CreatedAccount,
		DurationMs:     result.Duration.Milliseconds(),
	}
	if !result.MintSignature.IsZero() {
		payload.Signature = result.MintSignature.String()
	}
	if result.Err != nil {
		payload.Error = result.Err.Error()
	}

	if err := c.hub.BroadcastEvent(websocket.MessageTypeMintResult, payload); err != nil {
		c.logger.Warn("推送铸币结果失败", zap.Error(err))
	}
}

// monitorLoop 周期性更新运行时长
func (c *Coordinator) monitorLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.stats.mu.Lock()
			c.stats.Uptime = time.Since(c.stats.StartTime)
			c.stats.mu.Unlock()
		}
	}
}

// GetStatistics 返回协调器运行统计
func (c *Coordinator) GetStatistics() map[string]interface{} {
	c.mu.RLock()
	running := c.running
	mp3 := c.mp3
	buttons := c.buttons
	c.mu.RUnlock()

	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()

	uptime := c.stats.Uptime
	if running && !c.stats.StartTime.IsZero() {
		uptime = time.Since(c.stats.StartTime)
	}

	balances := c.balances.Get()

	stats := map[string]interface{}{
		"running":        running,
		"minting":        c.busy.Load(),
		"start_time":     c.stats.StartTime,
		"uptime_seconds": int64(uptime.Seconds()),
		"buttons": map[string]interface{}{
			"enabled":         buttons != nil,
			"button1_presses": c.stats.Button1Presses,
			"button2_presses": c.stats.Button2Presses,
		},
		"audio": map[string]interface{}{
			"enabled":   mp3 != nil,
			"connected": mp3 != nil && mp3.IsConnected(),
		},
		"mints": map[string]interface{}{
			"requests":      c.stats.MintRequests,
			"dropped":       c.stats.MintDropped,
			"success":       c.stats.MintSuccess,
			"not_confirmed": c.stats.MintNotConfirmed,
			"failed":        c.stats.MintFailed,
		},
		"balances": map[string]interface{}{
			"player1": balances.Player1,
			"player2": balances.Player2,
		},
		"display": map[string]interface{}{
			"queue_len": c.queue.Len(),
		},
		"websocket": map[string]interface{}{
			"online": c.hub.GetOnlineCount(),
		},
	}

	if !c.stats.LastMintTime.IsZero() {
		stats["last_mint_time"] = c.stats.LastMintTime
	}
	if c.stats.LastError != "" {
		stats["last_error"] = c.stats.LastError
		stats["last_error_time"] = c.stats.LastErrorTime
	}

	return stats
}

// PlayTrack 播放指定曲目
func (c *Coordinator) PlayTrack(track int) error {
	mp3, err := c.connectedMP3()
	if err != nil {
		return err
	}
	return mp3.PlayTrack(track)
}

// PlayFolderTrack 播放指定文件夹内曲目
func (c *Coordinator) PlayFolderTrack(folder, track int) error {
	mp3, err := c.connectedMP3()
	if err != nil {
		return err
	}
	return mp3.PlayFolderTrack(folder, track)
}

// SetVolume 设置音量
func (c *Coordinator) SetVolume(volume int) error {
	mp3, err := c.connectedMP3()
	if err != nil {
		return err
	}
	return mp3.SetVolume(volume)
}

// StopAudio 停止播放
func (c *Coordinator) StopAudio() error {
	mp3, err := c.connectedMP3()
	if err != nil {
		return err
	}
	return mp3.Stop()
}

func (c *Coordinator) connectedMP3() (hardware.MP3Controller, error) {
	c.mu.RLock()
	mp3 := c.mp3
	c.mu.RUnlock()

	if mp3 == nil {
		return nil, apperrors.New(apperrors.ErrSerialNotConnected, "音效模块未启用")
	}
	if !mp3.IsConnected() {
		return nil, apperrors.New(apperrors.ErrSerialNotConnected)
	}
	return mp3, nil
}

// GetMP3Controller 返回MP3控制器
func (c *Coordinator) GetMP3Controller() hardware.MP3Controller {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mp3
}

// GetButtonSource 返回按键事件源
func (c *Coordinator) GetButtonSource() hardware.ButtonSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buttons
}
