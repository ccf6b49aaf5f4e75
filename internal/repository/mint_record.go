package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Woody4618/raspberry-token-minter/internal/models"
)

// MintRecordRepository 铸造记录仓库
type MintRecordRepository struct {
	db *gorm.DB
}

// NewMintRecordRepository 创建铸造记录仓库
func NewMintRecordRepository(db *gorm.DB) *MintRecordRepository {
	return &MintRecordRepository{
		db: db,
	}
}

// Create 创建铸造记录
func (r *MintRecordRepository) Create(record *models.MintRecord) error {
	return r.db.Create(record).Error
}

// GetByID 根据ID获取记录
func (r *MintRecordRepository) GetByID(id uint) (*models.MintRecord, error) {
	var record models.MintRecord
	err := r.db.First(&record, id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetByOrderNo 根据订单号获取记录
func (r *MintRecordRepository) GetByOrderNo(orderNo string) (*models.MintRecord, error) {
	var record models.MintRecord
	err := r.db.Where("order_no = ?", orderNo).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Query 查询铸造记录
func (r *MintRecordRepository) Query(query *models.MintRecordQuery) ([]*models.MintRecord, int64, error) {
	db := r.db.Model(&models.MintRecord{})

	// 构建查询条件
	if query.Player > 0 {
		db = db.Where("player = ?", query.Player)
	}
	if query.Wallet != "" {
		db = db.Where("wallet = ?", query.Wallet)
	}
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}
	if query.Trigger != "" {
		db = db.Where("trigger_source = ?", query.Trigger)
	}
	if query.OrderNo != "" {
		db = db.Where("order_no = ?", query.OrderNo)
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", *query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", *query.EndTime)
	}
	if query.HasError != nil && *query.HasError {
		db = db.Where("error_msg IS NOT NULL AND error_msg != ''")
	}

	// 获取总数
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 排序
	orderBy := query.OrderBy
	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	db = db.Order(orderBy)

	// 分页
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	// 查询数据
	var records []*models.MintRecord
	if err := db.Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// GetStats 获取统计信息
func (r *MintRecordRepository) GetStats(startTime, endTime *time.Time) (*models.MintRecordStats, error) {
	stats := &models.MintRecordStats{}

	base := func() *gorm.DB {
		db := r.db.Model(&models.MintRecord{})
		if startTime != nil {
			db = db.Where("created_at >= ?", *startTime)
		}
		if endTime != nil {
			db = db.Where("created_at <= ?", *endTime)
		}
		return db
	}

	// 总数统计
	if err := base().Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}

	// 结果统计
	if err := base().Where("status = ?", models.MintStatusSuccess).
		Count(&stats.TotalSuccess).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status = ?", models.MintStatusNotConfirmed).
		Count(&stats.TotalNotConfirmed).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status = ?", models.MintStatusFailed).
		Count(&stats.TotalFailed).Error; err != nil {
		return nil, err
	}

	// 创建账户统计
	if err := base().Where("created_account = ?", true).
		Count(&stats.TotalCreated).Error; err != nil {
		return nil, err
	}

	// 玩家统计
	if err := base().Where("player = ?", 1).Count(&stats.Player1Count).Error; err != nil {
		return nil, err
	}
	if err := base().Where("player = ?", 2).Count(&stats.Player2Count).Error; err != nil {
		return nil, err
	}

	// 性能统计
	type DurationStats struct {
		AvgDuration float64
		MaxDuration int64
		MinDuration int64
	}
	var durationStats DurationStats
	if err := base().
		Select("AVG(duration) as avg_duration, MAX(duration) as max_duration, MIN(duration) as min_duration").
		Where("duration > 0").
		Scan(&durationStats).Error; err != nil {
		return nil, err
	}
	stats.AvgDuration = durationStats.AvgDuration
	stats.MaxDuration = durationStats.MaxDuration
	stats.MinDuration = durationStats.MinDuration

	return stats, nil
}

// GetLatest 获取最新的铸造记录
func (r *MintRecordRepository) GetLatest(limit int) ([]*models.MintRecord, error) {
	var records []*models.MintRecord
	err := r.db.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

// DeleteOldRecords 删除旧记录
func (r *MintRecordRepository) DeleteOldRecords(beforeTime time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", beforeTime).Delete(&models.MintRecord{})
	return result.RowsAffected, result.Error
}

// CleanupRecords 清理记录（保留最近N天的数据）
func (r *MintRecordRepository) CleanupRecords(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be greater than 0")
	}
	beforeTime := time.Now().AddDate(0, 0, -retentionDays)
	return r.DeleteOldRecords(beforeTime)
}
