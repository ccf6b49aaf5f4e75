package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Woody4618/raspberry-token-minter/internal/config"
	"github.com/Woody4618/raspberry-token-minter/internal/kiosk"
	"github.com/Woody4618/raspberry-token-minter/internal/middleware"
	"github.com/Woody4618/raspberry-token-minter/internal/repository"
	"github.com/Woody4618/raspberry-token-minter/internal/utils"
	ws "github.com/Woody4618/raspberry-token-minter/internal/websocket"
)

// Router API路由器
type Router struct {
	engine         *gin.Engine
	db             *gorm.DB
	coordinator    *kiosk.Coordinator
	authHandler    *AuthHandler
	kioskHandler   *KioskHandler
	recordAPI      *MintRecordAPI
	wsHandler      *WebSocketHandler
	authMiddleware *middleware.AuthMiddleware
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(
	cfg *config.Config,
	db *gorm.DB,
	coordinator *kiosk.Coordinator,
	repo *repository.MintRecordRepository,
	hub *ws.Hub,
	log *zap.Logger,
) *Router {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	// JWT管理器
	jwtManager := utils.NewJWTManager(
		cfg.Security.JWT.Secret,
		cfg.Security.JWT.Issuer,
		time.Duration(cfg.Security.JWT.ExpireHours)*time.Hour,
		time.Duration(cfg.Security.JWT.RefreshHours)*time.Hour,
	)

	router := &Router{
		engine:         engine,
		db:             db,
		coordinator:    coordinator,
		authHandler:    NewAuthHandler(&cfg.Security, jwtManager),
		kioskHandler:   NewKioskHandler(coordinator),
		recordAPI:      NewMintRecordAPI(repo),
		wsHandler:      NewWebSocketHandler(hub, &cfg.WebSocket, log),
		authMiddleware: middleware.NewAuthMiddleware(jwtManager),
		log:            log,
	}

	// 设置路由
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// API文档
	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		// 认证相关路由（不需要认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", r.authHandler.Login)
			auth.POST("/refresh", r.authHandler.RefreshToken)
		}

		// 机台控制路由（需要认证）
		kioskGroup := v1.Group("/kiosk")
		kioskGroup.Use(r.authMiddleware.RequireAuth())
		{
			kioskGroup.GET("/status", r.kioskHandler.GetStatus)
			kioskGroup.POST("/mint", r.kioskHandler.Mint)
			kioskGroup.POST("/refresh", r.kioskHandler.Refresh)
			kioskGroup.GET("/online", r.wsHandler.GetOnlineCount)

			// 音效控制
			audio := kioskGroup.Group("/audio")
			{
				audio.POST("/play", r.kioskHandler.PlayAudio)
				audio.POST("/volume", r.kioskHandler.SetVolume)
				audio.POST("/stop", r.kioskHandler.StopAudio)
			}

			// 铸币记录
			r.recordAPI.RegisterRoutes(kioskGroup)
		}
	}

	// WebSocket路由（浏览器连接用?token=传令牌）
	wsGroup := r.engine.Group("/ws")
	wsGroup.Use(r.authMiddleware.RequireAuth())
	{
		wsGroup.GET("", r.wsHandler.DashboardWebSocket)
	}

	// 静态文件服务（仪表盘页面）
	r.engine.Static("/static", "./static")

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	// 检查数据库连接
	sqlDB, err := r.db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "unhealthy",
			"message": "数据库ping失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
		"running": r.coordinator.IsRunning(),
	})
}

// Run 运行服务器
func (r *Router) Run(addr string) error {
	r.log.Info("Starting API server", zap.String("address", addr))
	return r.engine.Run(addr)
}

// GetEngine 获取Gin引擎，供外层HTTP服务器和测试使用
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
