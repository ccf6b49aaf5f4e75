package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Woody4618/raspberry-token-minter/internal/chain"
	apperrors "github.com/Woody4618/raspberry-token-minter/internal/errors"
	"github.com/Woody4618/raspberry-token-minter/internal/kiosk"
	"github.com/Woody4618/raspberry-token-minter/internal/models"
)

// KioskHandler 机台控制处理器
type KioskHandler struct {
	coordinator *kiosk.Coordinator
}

// NewKioskHandler 创建机台控制处理器
func NewKioskHandler(coordinator *kiosk.Coordinator) *KioskHandler {
	return &KioskHandler{
		coordinator: coordinator,
	}
}

// MintRequest 铸币请求
type MintRequest struct {
	Player int `json:"player" binding:"required,min=1,max=2"`
}

// PlayAudioRequest 播放音效请求
type PlayAudioRequest struct {
	Track  int `json:"track" binding:"required,min=1,max=255"`
	Folder int `json:"folder" binding:"omitempty,min=1,max=99"`
}

// SetVolumeRequest 设置音量请求
type SetVolumeRequest struct {
	Volume *int `json:"volume" binding:"required,min=0,max=30"`
}

// GetStatus 获取机台状态
// @Summary 获取机台状态
// @Description 返回运行状态、余额、铸币和按键统计
// @Tags Kiosk
// @Security Bearer
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/kiosk/status [get]
func (h *KioskHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.coordinator.GetStatistics())
}

// Mint 触发铸币
// @Summary 为指定玩家铸币
// @Description 把铸币请求排队执行，结果通过WebSocket推送；已有铸币进行中时返回409
// @Tags Kiosk
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body MintRequest true "铸币请求"
// @Success 202 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/kiosk/mint [post]
func (h *KioskHandler) Mint(c *gin.Context) {
	var req MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	if err := h.coordinator.RequestMint(chain.Player(req.Player), models.MintTriggerAPI); err != nil {
		if apperrors.Is(err, apperrors.ErrMintBusy) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Code:    "MINT_BUSY",
				Message: "铸币任务正在进行中",
			})
			return
		}
		if apperrors.Is(err, apperrors.ErrInvalidParam) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "MINT_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, SuccessResponse{
		Message: "铸币请求已受理",
		Data:    gin.H{"player": req.Player},
	})
}

// Refresh 刷新余额
// @Summary 刷新玩家余额
// @Description 立即查询两名玩家的链上余额并推送状态屏
// @Tags Kiosk
// @Security Bearer
// @Produce json
// @Success 200 {object} chain.BalanceState
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/kiosk/refresh [post]
func (h *KioskHandler) Refresh(c *gin.Context) {
	state, err := h.coordinator.RequestRefresh()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "REFRESH_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, state)
}

// PlayAudio 播放音效
// @Summary 播放音效
// @Description 播放指定曲目，folder非零时播放文件夹内曲目
// @Tags Kiosk
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body PlayAudioRequest true "播放请求"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/kiosk/audio/play [post]
func (h *KioskHandler) PlayAudio(c *gin.Context) {
	var req PlayAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	var err error
	if req.Folder > 0 {
		err = h.coordinator.PlayFolderTrack(req.Folder, req.Track)
	} else {
		err = h.coordinator.PlayTrack(req.Track)
	}
	if err != nil {
		h.audioError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "播放成功"})
}

// SetVolume 设置音量
// @Summary 设置音量
// @Description 设置MP3模块音量（0-30）
// @Tags Kiosk
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body SetVolumeRequest true "音量请求"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/kiosk/audio/volume [post]
func (h *KioskHandler) SetVolume(c *gin.Context) {
	var req SetVolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	if err := h.coordinator.SetVolume(*req.Volume); err != nil {
		h.audioError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "音量已设置",
		Data:    gin.H{"volume": *req.Volume},
	})
}

// StopAudio 停止播放
// @Summary 停止播放
// @Tags Kiosk
// @Security Bearer
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/kiosk/audio/stop [post]
func (h *KioskHandler) StopAudio(c *gin.Context) {
	if err := h.coordinator.StopAudio(); err != nil {
		h.audioError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "已停止播放"})
}

// audioError 把音效错误映射为HTTP响应
func (h *KioskHandler) audioError(c *gin.Context, err error) {
	switch {
	case apperrors.Is(err, apperrors.ErrSerialNotConnected):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "AUDIO_UNAVAILABLE",
			Message: "音效模块未连接",
		})
	case apperrors.Is(err, apperrors.ErrParamOutOfRange):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "AUDIO_FAILED",
			Message: err.Error(),
		})
	}
}
