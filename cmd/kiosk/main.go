package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Woody4618/raspberry-token-minter/internal/api"
	"github.com/Woody4618/raspberry-token-minter/internal/chain"
	"github.com/Woody4618/raspberry-token-minter/internal/config"
	"github.com/Woody4618/raspberry-token-minter/internal/database"
	"github.com/Woody4618/raspberry-token-minter/internal/display"
	"github.com/Woody4618/raspberry-token-minter/internal/errors"
	"github.com/Woody4618/raspberry-token-minter/internal/kiosk"
	"github.com/Woody4618/raspberry-token-minter/internal/logger"
	"github.com/Woody4618/raspberry-token-minter/internal/repository"
	"github.com/Woody4618/raspberry-token-minter/internal/utils"
	"github.com/Woody4618/raspberry-token-minter/internal/websocket"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务组件
	repo        *repository.MintRecordRepository
	hub         *websocket.Hub
	queue       *display.Queue
	renderer    *display.Renderer
	balances    *chain.BalanceTracker
	minter      *chain.Minter
	coordinator *kiosk.Coordinator
	router      *api.Router
	httpServer  *http.Server

	// 关闭控制
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	// 显示版本信息
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// 显示帮助信息
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	// 设置系统参数
	setupSystem(&cfg.System)

	// 打印启动信息
	printStartInfo(cfg, *configPath)

	// 创建服务器实例
	server := NewServer(cfg)

	// 启动服务器
	if err := server.Start(); err != nil {
		logger.Fatal("机台启动失败", zap.Error(err))
	}

	// 等待退出信号
	server.WaitForShutdown()

	// 优雅关闭
	if err := server.Shutdown(); err != nil {
		logger.Error("机台关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("机台已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动代币铸造机台...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	// 初始化各个组件
	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}

	// 启动各个服务
	if err := s.startServices(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "启动服务失败")
	}

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("机台启动成功",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)),
		zap.String("rpc", s.cfg.Chain.RPCURL),
	)

	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	s.logger.Info("初始化组件...")

	// 初始化数据库
	if err := s.initDatabase(); err != nil {
		return err
	}

	// 初始化WebSocket中心
	s.initWebSocket()

	// 初始化状态显示
	s.initDisplay()

	// 初始化链上组件
	if err := s.initChain(); err != nil {
		return err
	}

	// 初始化机台协调器
	if err := s.initKiosk(); err != nil {
		return err
	}

	// 初始化HTTP路由
	if err := s.initRouter(); err != nil {
		return err
	}

	s.logger.Info("所有组件初始化完成")
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...")

	// 初始化数据库连接
	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	// 自动迁移数据库
	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	// 检查数据库连接
	if !database.IsConnected() {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	s.repo = repository.NewMintRecordRepository(database.GetDB())

	s.logger.Info("数据库初始化完成")
	return nil
}

// initWebSocket 初始化WebSocket中心
func (s *Server) initWebSocket() {
	s.hub = websocket.NewHub(&s.cfg.WebSocket, logger.GetModuleLogger("websocket"))

	// Hub随进程存活，不参与优雅关闭
	go s.hub.Run()
}

// initDisplay 初始化状态显示
// 控制台和WebSocket仪表盘共用同一条更新队列
func (s *Server) initDisplay() {
	s.queue = display.NewQueue()
	s.renderer = display.NewRenderer(s.queue, s.cfg.Display.DrainInterval,
		display.NewConsoleDisplay(),
		websocket.NewWebDisplay(s.hub),
	)
}

// initChain 初始化链上组件
func (s *Server) initChain() error {
	s.logger.Info("初始化链上组件...", zap.String("rpc", s.cfg.Chain.RPCURL))

	s.balances = chain.NewBalanceTracker()

	client := chain.NewRPCClient(&s.cfg.Chain)
	minter, err := chain.NewMinter(&s.cfg.Chain, &s.cfg.Display, client, s.queue, s.balances)
	if err != nil {
		return err
	}
	s.minter = minter

	return nil
}

// initKiosk 初始化机台协调器
func (s *Server) initKiosk() error {
	s.coordinator = kiosk.NewCoordinator(s.cfg, s.minter, s.balances, s.repo, s.hub, s.queue, s.renderer)
	return s.coordinator.Initialize()
}

// initRouter 初始化HTTP路由
func (s *Server) initRouter() error {
	// 未配置JWT密钥时生成临时密钥，重启后之前签发的令牌全部失效
	if s.cfg.Security.JWT.Secret == "" || s.cfg.Security.JWT.Secret == "change-me-in-production" {
		secret, err := utils.GenerateRandomString(32)
		if err != nil {
			return errors.Wrap(err, errors.ErrUnknown, "生成JWT临时密钥失败")
		}
		s.cfg.Security.JWT.Secret = secret
		s.logger.Warn("未配置JWT密钥，已生成临时密钥，重启后所有令牌将失效")
	}

	s.router = api.NewRouter(s.cfg, database.GetDB(), s.coordinator, s.repo, s.hub, logger.GetModuleLogger("api"))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	return nil
}

// startServices 启动服务
func (s *Server) startServices() error {
	s.logger.Info("启动服务...")

	// 启动机台协调器（接入硬件、开始监听按键）
	if err := s.coordinator.Start(); err != nil {
		return err
	}

	// 启动HTTP服务器
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("HTTP服务器监听中", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务器异常退出", zap.Error(err))
		}
	}()

	s.logger.Info("所有服务启动完成")
	return nil
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	// 创建信号通道
	sigCh := make(chan os.Signal, 1)

	// 监听系统信号
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
		syscall.SIGQUIT, // Ctrl+\
	)

	// 等待信号
	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))

	// 发送关闭信号
	close(s.shutdownCh)
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭机台...")

	// 创建超时上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接收新请求
	s.logger.Info("停止接收新请求...")
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP服务器关闭失败", zap.Error(err))
		}
	}

	// 停止协调器（断开硬件、刷完剩余的显示更新）
	if s.coordinator != nil {
		if err := s.coordinator.Stop(); err != nil {
			s.logger.Error("协调器关闭失败", zap.Error(err))
		}
	}

	// 取消主上下文，触发所有goroutine退出
	s.cancel()

	// 等待所有服务关闭
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	// 等待关闭完成或超时
	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return errors.New(errors.ErrTimeout, "关闭超时")
	}

	// 关闭各个组件
	if err := s.closeComponents(); err != nil {
		s.logger.Error("关闭组件失败", zap.Error(err))
		return err
	}

	// 同步日志
	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}

	return nil
}

// closeComponents 关闭组件
func (s *Server) closeComponents() error {
	s.logger.Info("关闭组件...")

	// 关闭数据库连接
	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	s.logger.Info("所有组件已关闭")
	return nil
}

// reloadConfig 重新加载配置
func (s *Server) reloadConfig(newCfg *config.Config) {
	s.cfg = newCfg

	// 日志级别即时生效
	logger.SetLevel(newCfg.Log.Level)

	// 串口、GPIO、链上钱包等配置改动需要重启机台才会生效
	s.logger.Info("配置重新加载完成，硬件相关改动需重启后生效")
}

// setupSystem 设置系统参数
func setupSystem(cfg *config.SystemConfig) {
	// 设置时区
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
			time.Local = loc
		}
	}

	// 设置最大处理器数
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}

	// 设置文件描述符限制（Unix系统）
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err == nil {
		rLimit.Cur = rLimit.Max
		syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("代币铸造机台\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("代币铸造机台")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  kiosk [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  KIOSK_CHAIN_RPC_URL       Solana RPC节点地址")
	fmt.Println("  KIOSK_SERIAL_PORT         MP3模块串口设备")
	fmt.Println("  KIOSK_SECURITY_JWT_SECRET JWT签名密钥")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  kiosk -config=/path/to/config.yaml")
	fmt.Println("  kiosk -version")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config, configPath string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   _____     _                 __  __ _       _            ║
║  |_   _|__ | | _____ _ __    |  \/  (_)_ __ | |_ ___ _ __ ║
║    | |/ _ \| |/ / _ \ '_ \   | |\/| | | '_ \| __/ _ \ '__|║
║    | | (_) |   <  __/ | | |  | |  | | | | | | ||  __/ |   ║
║    |_|\___/|_|\_\___|_| |_|  |_|  |_|_|_| |_|\__\___|_|   ║
║                                                           ║
║                    街机按钮代币铸造机                     ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	if configPath == "" {
		configPath = "内置默认值"
	}
	fmt.Printf("版本: %s | 模式: %s | PID: %d\n", Version, cfg.Server.Mode, os.Getpid())
	fmt.Printf("配置文件: %s\n", configPath)
	fmt.Println("═══════════════════════════════════════════════════════════════")
}
