package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Serial    SerialConfig    `mapstructure:"serial"`
	GPIO      GPIOConfig      `mapstructure:"gpio"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Display   DisplayConfig   `mapstructure:"display"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
	System    SystemConfig    `mapstructure:"system"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Path              string        `mapstructure:"path"`
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	EnableCompression bool          `mapstructure:"enable_compression"`
}

// SerialConfig MP3模块串口配置
type SerialConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MockMode        bool          `mapstructure:"mock_mode"` // 调试模式（使用模拟控制器）
	Port            string        `mapstructure:"port"`
	BaudRate        int           `mapstructure:"baud_rate"`
	DataBits        int           `mapstructure:"data_bits"`
	StopBits        int           `mapstructure:"stop_bits"`
	Parity          string        `mapstructure:"parity"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	GuardDelay      time.Duration `mapstructure:"guard_delay"`       // 每帧发送后的串行化等待
	StatusReadDelay time.Duration `mapstructure:"status_read_delay"` // 状态查询后读取前的等待
}

// GPIOConfig 按键GPIO配置
type GPIOConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	MockMode   bool          `mapstructure:"mock_mode"` // 调试模式（使用模拟按键源）
	Chip       string        `mapstructure:"chip"`
	Consumer   string        `mapstructure:"consumer"`
	Button1Pin int           `mapstructure:"button1_pin"`
	Button2Pin int           `mapstructure:"button2_pin"`
	Debounce   time.Duration `mapstructure:"debounce"`
}

// AudioConfig 音效配置
type AudioConfig struct {
	Volume       int `mapstructure:"volume"`
	Button1Track int `mapstructure:"button1_track"`
	Button2Track int `mapstructure:"button2_track"`
}

// ChainConfig 链上配置
type ChainConfig struct {
	RPCURL              string        `mapstructure:"rpc_url"`
	KeypairPath         string        `mapstructure:"keypair_path"`
	Mint                string        `mapstructure:"mint"`
	Player1Wallet       string        `mapstructure:"player1_wallet"`
	Player2Wallet       string        `mapstructure:"player2_wallet"`
	MintAmount          uint64        `mapstructure:"mint_amount"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout"`
	ConfirmPollInterval time.Duration `mapstructure:"confirm_poll_interval"`
}

// DisplayConfig 显示配置
type DisplayConfig struct {
	DrainInterval     time.Duration `mapstructure:"drain_interval"`
	SuccessPause      time.Duration `mapstructure:"success_pause"`
	ClearPause        time.Duration `mapstructure:"clear_pause"`
	NotConfirmedPause time.Duration `mapstructure:"not_confirmed_pause"`
	ErrorPause        time.Duration `mapstructure:"error_pause"`
	TitleLine1        string        `mapstructure:"title_line1"`
	TitleLine2        string        `mapstructure:"title_line2"`
	Subtitle          string        `mapstructure:"subtitle"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT   JWTConfig   `mapstructure:"jwt"`
	Admin AdminConfig `mapstructure:"admin"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	Issuer       string `mapstructure:"issuer"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

// AdminConfig 管理端登录配置
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"` // argon2id散列
}

// SystemConfig 系统配置
type SystemConfig struct {
	Timezone string `mapstructure:"timezone"`
	MaxProcs int    `mapstructure:"max_procs"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		// 设置配置文件路径
		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		// 设置环境变量前缀
		v.SetEnvPrefix("KIOSK")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		// 设置默认值
		setDefaults(v)

		// 读取配置文件
		if err = v.ReadInConfig(); err != nil {
			// 如果配置文件不存在，使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		// 解析配置到结构体
		cfg = &Config{}
		if err = v.Unmarshal(cfg); err != nil {
			return
		}
	})

	return err
}

// setDefaults 设置默认配置值
// 默认值即设备出厂常量，不带配置文件也能按原始行为运行
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/kiosk.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "info")
	v.SetDefault("database.auto_migrate", true)

	// WebSocket默认配置
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.enable_compression", true)

	// MP3串口默认配置
	v.SetDefault("serial.enabled", true)
	v.SetDefault("serial.mock_mode", false)
	v.SetDefault("serial.port", "/dev/serial0")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.read_timeout", "1s")
	v.SetDefault("serial.guard_delay", "100ms")
	v.SetDefault("serial.status_read_delay", "100ms")

	// GPIO默认配置
	v.SetDefault("gpio.enabled", true)
	v.SetDefault("gpio.mock_mode", false)
	v.SetDefault("gpio.chip", "gpiochip0")
	v.SetDefault("gpio.consumer", "token-kiosk")
	v.SetDefault("gpio.button1_pin", 17)
	v.SetDefault("gpio.button2_pin", 18)
	v.SetDefault("gpio.debounce", "300ms")

	// 音效默认配置
	v.SetDefault("audio.volume", 20)
	v.SetDefault("audio.button1_track", 3)
	v.SetDefault("audio.button2_track", 2)

	// 链上默认配置
	v.SetDefault("chain.rpc_url", "https://api.devnet.solana.com")
	v.SetDefault("chain.keypair_path", "waL4uRNa8mErBkbTZVWb4MfXXGfQA7PCfP3hbXS1uEn.json")
	v.SetDefault("chain.mint", "gyriWKfyFGRLw1a6JuueMZ6ER84WewmicFUa6B3GZJy")
	v.SetDefault("chain.player1_wallet", "41QHsedtyfNyj6Q2iCDFoGspZ7rqUKu735YNoFLTvw9i")
	v.SetDefault("chain.player2_wallet", "GsfNSuZFrT2r4xzSndnCSs9tTXwt47etPqU8yFVnDcXd")
	v.SetDefault("chain.mint_amount", 1000000000)
	v.SetDefault("chain.confirm_timeout", "30s")
	v.SetDefault("chain.confirm_poll_interval", "500ms")

	// 显示默认配置
	v.SetDefault("display.drain_interval", "50ms")
	v.SetDefault("display.success_pause", "500ms")
	v.SetDefault("display.clear_pause", "2s")
	v.SetDefault("display.not_confirmed_pause", "2500ms")
	v.SetDefault("display.error_pause", "3s")
	v.SetDefault("display.title_line1", "Who unloaded")
	v.SetDefault("display.title_line2", "the dishwasher?")
	v.SetDefault("display.subtitle", "Press to mint tokens")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "kiosk.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	// 安全默认配置
	v.SetDefault("security.jwt.secret", "change-me-in-production")
	v.SetDefault("security.jwt.issuer", "token-kiosk")
	v.SetDefault("security.jwt.expire_hours", 24)
	v.SetDefault("security.jwt.refresh_hours", 168)
	v.SetDefault("security.admin.username", "admin")
	// 默认不设置密码散列，未配置时管理端登录被拒绝
	v.SetDefault("security.admin.password_hash", "")

	// 系统默认配置
	v.SetDefault("system.timezone", "Asia/Shanghai")
	v.SetDefault("system.max_procs", 0)
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}

		fmt.Println("配置已重新加载")
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	return v.GetString(key)
}

// GetInt 获取整数配置
func GetInt(key string) int {
	return v.GetInt(key)
}

// GetBool 获取布尔配置
func GetBool(key string) bool {
	return v.GetBool(key)
}

// GetFloat64 获取浮点数配置
func GetFloat64(key string) float64 {
	return v.GetFloat64(key)
}

// GetDuration 获取时间间隔配置
func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}

// IsSet 检查配置项是否存在
func IsSet(key string) bool {
	return v.IsSet(key)
}

// Set 动态设置配置值
func Set(key string, value interface{}) {
	v.Set(key, value)
}
