package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Woody4618/raspberry-token-minter/internal/config"
	"github.com/Woody4618/raspberry-token-minter/internal/utils"
)

// AuthHandler 认证处理器
// 机台只有一个管理员账号，凭据保存在配置文件中
type AuthHandler struct {
	security   *config.SecurityConfig
	jwtManager *utils.JWTManager
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(security *config.SecurityConfig, jwtManager *utils.JWTManager) *AuthHandler {
	return &AuthHandler{
		security:   security,
		jwtManager: jwtManager,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Username     string `json:"username"`
	Role         string `json:"role"`
}

// RefreshTokenRequest 刷新令牌请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Login 管理员登录
// @Summary 管理员登录
// @Description 使用配置文件中的管理员账号登录
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "登录信息"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	if h.security.Admin.PasswordHash == "" {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Code:    "ADMIN_DISABLED",
			Message: "管理员账号未配置",
		})
		return
	}

	// 用户名或密码不对都返回同一个错误，不区分是哪个错了
	match, err := utils.VerifyPassword(req.Password, h.security.Admin.PasswordHash)
	if err != nil || !match || req.Username != h.security.Admin.Username {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "LOGIN_FAILED",
			Message: "用户名或密码错误",
		})
		return
	}

	accessToken, err := h.jwtManager.GenerateAccessToken(req.Username, "admin")
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "TOKEN_GENERATION_FAILED",
			Message: "令牌生成失败",
		})
		return
	}

	refreshToken, err := h.jwtManager.GenerateRefreshToken(req.Username, "admin")
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "TOKEN_GENERATION_FAILED",
			Message: "令牌生成失败",
		})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(h.jwtManager.GetTokenExpiry("access").Seconds()),
		Username:     req.Username,
		Role:         "admin",
	})
}

// RefreshToken 刷新令牌
// @Summary 刷新访问令牌
// @Description 使用刷新令牌获取新的访问令牌
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RefreshTokenRequest true "刷新令牌"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	accessToken, err := h.jwtManager.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "REFRESH_FAILED",
			Message: "刷新令牌无效或已过期",
		})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.jwtManager.GetTokenExpiry("access").Seconds()),
		Username:    h.security.Admin.Username,
		Role:        "admin",
	})
}
