package legacy

import (
	"fmt"
	"strings"
	"time"

	"github.com/dushixiang/selfmon/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	legacyTable   = "agents"
	importedTable = "agents_imported"
	batchSize     = 500
)

// legacyRow 旧版部署的 agents 表，每行是一次采样
type legacyRow struct {
	ID          int64
	Name        string
	Status      string
	CPUUsage    float64
	MemoryUsage float64
	Time        string
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	time.RFC3339Nano,
}

// Migrate 将旧版 agents 表中的采样导入 samples 表，导入后重命名旧表避免重复导入
func Migrate(logger *zap.Logger, db *gorm.DB) error {
	migrator := db.Migrator()
	if migrator == nil {
		logger.Warn("无法获取数据库 migrator，跳过迁移")
		return nil
	}

	if !migrator.HasTable(legacyTable) {
		return nil
	}

	// 检查是否为旧版采样表
	for _, column := range []string{"name", "status", "cpu_usage", "memory_usage", "time"} {
		if !migrator.HasColumn(legacyTable, column) {
			logger.Info("agents 表结构不匹配，跳过迁移", zap.String("missingColumn", column))
			return nil
		}
	}

	logger.Info("开始导入旧版采样数据")

	var rows []legacyRow
	if err := db.Table(legacyTable).
		Select("id, name, status, cpu_usage, memory_usage, CAST(time AS TEXT) AS time").
		Order("id ASC").
		Scan(&rows).Error; err != nil {
		logger.Error("查询旧版采样失败", zap.Error(err))
		return err
	}

	samples := make([]models.Sample, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		ts, err := parseLegacyTime(row.Time)
		if err != nil {
			skipped++
			logger.Debug("跳过无法解析时间的旧版采样",
				zap.Int64("id", row.ID),
				zap.String("time", row.Time))
			continue
		}
		status := models.StatusOffline
		if row.Status == models.StatusOnline {
			status = models.StatusOnline
		}
		samples = append(samples, models.Sample{
			AgentName:   row.Name,
			Status:      status,
			CPUUsage:    row.CPUUsage,
			MemoryUsage: row.MemoryUsage,
			Timestamp:   ts.UnixMilli(),
		})
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if len(samples) > 0 {
			if err := tx.CreateInBatches(samples, batchSize).Error; err != nil {
				return err
			}
		}
		return tx.Migrator().RenameTable(legacyTable, importedTable)
	})
	if err != nil {
		return fmt.Errorf("导入旧版采样失败: %w", err)
	}

	logger.Info("旧版采样数据导入完成",
		zap.Int("imported", len(samples)),
		zap.Int("skipped", skipped))
	return nil
}

// parseLegacyTime 旧版写入的是本地时间 DATETIME('now', 'localtime')
func parseLegacyTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间: %q", value)
}
