package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Woody4618/raspberry-token-minter/internal/models"
	"github.com/Woody4618/raspberry-token-minter/internal/repository"
)

// MintRecordAPI 铸币记录API
type MintRecordAPI struct {
	repo *repository.MintRecordRepository
}

// NewMintRecordAPI 创建铸币记录API
func NewMintRecordAPI(repo *repository.MintRecordRepository) *MintRecordAPI {
	return &MintRecordAPI{
		repo: repo,
	}
}

// RegisterRoutes 注册路由
func (api *MintRecordAPI) RegisterRoutes(router *gin.RouterGroup) {
	records := router.Group("/records")
	{
		records.GET("", api.QueryRecords)            // 查询记录列表
		records.GET("/latest", api.GetLatest)        // 获取最新记录
		records.GET("/stats", api.GetStats)          // 获取统计信息
		records.GET("/export", api.ExportRecords)    // 导出记录
		records.POST("/cleanup", api.CleanupRecords) // 清理旧记录
	}
}

// parseQuery 解析查询参数
func parseRecordQuery(c *gin.Context) *models.MintRecordQuery {
	query := &models.MintRecordQuery{}

	if player := c.Query("player"); player != "" {
		if v, err := strconv.Atoi(player); err == nil {
			query.Player = v
		}
	}
	query.Wallet = c.Query("wallet")
	if status := c.Query("status"); status != "" {
		query.Status = models.MintStatus(status)
	}
	if trigger := c.Query("trigger"); trigger != "" {
		query.Trigger = models.MintTrigger(trigger)
	}
	query.OrderNo = c.Query("order_no")

	// 时间范围
	if startTime := c.Query("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			query.StartTime = &t
		}
	}
	if endTime := c.Query("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			query.EndTime = &t
		}
	}

	// 是否有错误
	if hasError := c.Query("has_error"); hasError == "true" {
		b := true
		query.HasError = &b
	}

	// 分页参数
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	query.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	query.OrderBy = c.DefaultQuery("order_by", "created_at DESC")

	return query
}

// QueryRecords 查询铸币记录列表
// @Summary 查询铸币记录
// @Description 支持按玩家、状态、触发来源、钱包和时间范围过滤
// @Tags Records
// @Security Bearer
// @Produce json
// @Param player query int false "玩家编号 (1/2)"
// @Param status query string false "状态 (success/not_confirmed/failed)"
// @Param trigger query string false "触发来源 (button/api)"
// @Param wallet query string false "钱包地址"
// @Param limit query int false "每页条数" default(20)
// @Param offset query int false "偏移量" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/kiosk/records [get]
func (api *MintRecordAPI) QueryRecords(c *gin.Context) {
	query := parseRecordQuery(c)

	records, total, err := api.repo.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   records,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// GetLatest 获取最新铸币记录
// @Summary 获取最新铸币记录
// @Tags Records
// @Security Bearer
// @Produce json
// @Param limit query int false "条数" default(20)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/kiosk/records/latest [get]
func (api *MintRecordAPI) GetLatest(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	records, err := api.repo.GetLatest(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  records,
		"count": len(records),
	})
}

// GetStats 获取铸币统计
// @Summary 获取铸币统计信息
// @Description 返回成功/未确认/失败计数、分玩家计数和耗时统计
// @Tags Records
// @Security Bearer
// @Produce json
// @Param start_time query string false "起始时间 (RFC3339)"
// @Param end_time query string false "结束时间 (RFC3339)"
// @Success 200 {object} models.MintRecordStats
// @Router /api/v1/kiosk/records/stats [get]
func (api *MintRecordAPI) GetStats(c *gin.Context) {
	var startTime, endTime *time.Time

	if start := c.Query("start_time"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			startTime = &t
		}
	}
	if end := c.Query("end_time"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			endTime = &t
		}
	}

	stats, err := api.repo.GetStats(startTime, endTime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取统计失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ExportRecords 导出铸币记录
// @Summary 导出铸币记录
// @Description 按查询条件导出为JSON文件下载
// @Tags Records
// @Security Bearer
// @Produce json
// @Success 200 {array} models.MintRecord
// @Router /api/v1/kiosk/records/export [get]
func (api *MintRecordAPI) ExportRecords(c *gin.Context) {
	query := parseRecordQuery(c)

	// 导出上限放宽
	if query.Limit <= 20 {
		query.Limit = 1000
	}

	records, _, err := api.repo.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "导出失败",
			"message": err.Error(),
		})
		return
	}

	filename := fmt.Sprintf("mint_records_%s.json", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.JSON(http.StatusOK, records)
}

// CleanupRecords 清理旧记录
// @Summary 清理旧铸币记录
// @Description 删除保留期之外的记录
// @Tags Records
// @Security Bearer
// @Produce json
// @Param retention_days formData int false "保留天数" default(90)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/v1/kiosk/records/cleanup [post]
func (api *MintRecordAPI) CleanupRecords(c *gin.Context) {
	retentionDays, _ := strconv.Atoi(c.DefaultPostForm("retention_days", "90"))
	if retentionDays < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "保留天数必须大于0",
		})
		return
	}

	count, err := api.repo.CleanupRecords(retentionDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "清理失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "清理成功",
		"deleted":        count,
		"retention_days": retentionDays,
	})
}
