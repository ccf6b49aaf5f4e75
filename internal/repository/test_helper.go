package repository

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Woody4618/raspberry-token-minter/internal/models"
)

// SetupTestDB 为测试套件设置测试数据库
func SetupTestDB() *gorm.DB {
	// 使用内存数据库进行测试（更快，不需要文件系统，在所有环境中都能工作）
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.MintRecord{},
	)
	if err != nil {
		panic(err)
	}

	return db
}

// CleanupTestDB 清理测试数据库
func CleanupTestDB(db *gorm.DB) {
	// 关闭数据库连接
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// CreateTestMintRecord 创建测试铸造记录
func CreateTestMintRecord(player int, status models.MintStatus) *models.MintRecord {
	wallet := "41QHseJmGe8pjTikTZF6ZWHRJaCQq7ZPXqDunD9kJhGK"
	if player == 2 {
		wallet = "GsfNSuZFrT2r4xzSndnCSs9tTXwt47etPqU8yFVnDcXd"
	}

	return &models.MintRecord{
		OrderNo: uuid.NewString(),
		Player:  player,
		Label:   fmt.Sprintf("Player %d", player),
		Trigger: models.MintTriggerButton,
		Wallet:  wallet,
		Amount:  1000000000,
		Status:  status,
	}
}

// AssertMintRecord 验证铸造记录
func AssertMintRecord(t *testing.T, expected, actual *models.MintRecord) {
	assert.Equal(t, expected.OrderNo, actual.OrderNo)
	assert.Equal(t, expected.Player, actual.Player)
	assert.Equal(t, expected.Wallet, actual.Wallet)
	assert.Equal(t, expected.Status, actual.Status)
	assert.Equal(t, expected.Amount, actual.Amount)
}
