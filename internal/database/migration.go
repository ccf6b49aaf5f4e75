package database

import (
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/Woody4618/raspberry-token-minter/internal/logger"
	"github.com/Woody4618/raspberry-token-minter/internal/models"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 清理过期锁文件
	CleanupStaleLocks()

	// 获取迁移锁，避免多个进程同时迁移
	dbPath := getDBPath()
	if dbPath != "" {
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	// 定义需要迁移的模型
	migrationModels := []interface{}{
		// 铸造审计
		&models.MintRecord{},
	}

	// 执行迁移
	logger.Info("开始数据库迁移...")

	for _, model := range migrationModels {
		tableName := getTableName(model)

		// 检查表是否存在且有数据
		if shouldSkipMigration(tableName) {
			logger.Info("跳过大型表的迁移", zap.String("table", tableName))
			continue
		}

		if err := DB.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	// 创建索引
	if err := createIndexes(); err != nil {
		return err
	}

	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建数据库索引
func createIndexes() error {
	// 铸造记录的统计查询按时间窗口加状态/玩家过滤
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_mint_records_status_created ON mint_records(status, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_mint_records_player_created ON mint_records(player, created_at)",
	}

	for _, idx := range indexes {
		if err := DB.Exec(idx).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", idx), zap.Error(err))
		}
	}

	logger.Info("数据库索引创建完成")
	return nil
}

// getTableName 获取模型对应的表名
func getTableName(model interface{}) string {
	// 使用反射获取类型
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	// 尝试调用TableName方法
	if tabler, ok := model.(interface{ TableName() string }); ok {
		return tabler.TableName()
	}

	// 否则使用GORM默认的表名规则
	modelName := t.Name()
	// 转换为蛇形命名并复数化
	tableName := toSnakeCase(modelName) + "s"
	return tableName
}

// toSnakeCase 将驼峰命名转换为蛇形命名
func toSnakeCase(s string) string {
	var result []rune
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result = append(result, '_')
		}
		result = append(result, r)
	}
	return strings.ToLower(string(result))
}

// shouldSkipMigration 检查是否应该跳过迁移
func shouldSkipMigration(tableName string) bool {
	// 机台长期运行后审计表会积累大量记录，
	// SQLite的AutoMigrate改表要整表重建，数据多时直接跳过
	if tableName == "mint_records" && DB.Dialector.Name() == "sqlite" {
		var exists bool
		err := DB.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name=?", tableName).Scan(&exists).Error
		if err != nil || !exists {
			return false
		}

		var count int64
		DB.Raw(fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName)).Scan(&count)

		if count > 50000 {
			logger.Info("表中数据量较大，跳过AutoMigrate",
				zap.String("table", tableName),
				zap.Int64("count", count))

			// 仅添加新的索引，不修改表结构
			ensureIndexesForLargeTable(tableName)
			return true
		}
	}
	return false
}

// ensureIndexesForLargeTable 为大表确保索引存在
func ensureIndexesForLargeTable(tableName string) {
	if tableName == "mint_records" {
		// 仅创建不存在的索引，避免重建表
		indexes := []string{
			"CREATE INDEX IF NOT EXISTS idx_mint_records_order_no ON mint_records(order_no)",
			"CREATE INDEX IF NOT EXISTS idx_mint_records_player ON mint_records(player)",
			"CREATE INDEX IF NOT EXISTS idx_mint_records_wallet ON mint_records(wallet)",
			"CREATE INDEX IF NOT EXISTS idx_mint_records_status ON mint_records(status)",
			"CREATE INDEX IF NOT EXISTS idx_mint_records_created_at ON mint_records(created_at)",
			"CREATE INDEX IF NOT EXISTS idx_mint_records_status_created ON mint_records(status, created_at)",
			"CREATE INDEX IF NOT EXISTS idx_mint_records_player_created ON mint_records(player, created_at)",
		}

		for _, idx := range indexes {
			if err := DB.Exec(idx).Error; err != nil {
				// 忽略索引已存在的错误
				if !strings.Contains(err.Error(), "already exists") {
					logger.Warn("创建索引失败", zap.String("index", idx), zap.Error(err))
				}
			}
		}
	}
}

// DropAllTables 删除所有表（仅用于测试环境）
func DropAllTables() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 获取所有表名
	var tables []string
	if err := DB.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tables).Error; err != nil {
		return err
	}

	// 删除所有表
	for _, table := range tables {
		if err := DB.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)).Error; err != nil {
			logger.Error("删除表失败", zap.String("table", table), zap.Error(err))
			return err
		}
	}

	logger.Info("所有表已删除")
	return nil
}
