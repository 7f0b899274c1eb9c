package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dushixiang/selfmon/internal/config"
	"github.com/dushixiang/selfmon/internal/migrate/legacy"
	"github.com/dushixiang/selfmon/internal/models"
	"github.com/dushixiang/selfmon/internal/repo"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

// Open 按配置打开采样存储
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (repo.SampleStore, error) {
	switch cfg.Driver {
	case DriverBolt:
		if err := ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		store, err := repo.NewBoltSampleRepo(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("使用 bbolt 存储采样数据", zap.String("path", cfg.Path))
		return store, nil
	case DriverPostgres, DriverSqlite, "":
		db, err := OpenGorm(cfg, logger)
		if err != nil {
			return nil, err
		}
		return repo.NewSampleRepo(db), nil
	default:
		return nil, fmt.Errorf("不支持的数据库类型: %s", cfg.Driver)
	}
}

// OpenGorm 打开关系型数据库并完成表结构迁移
func OpenGorm(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		if err := ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(sqliteDSN(cfg.Path))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == DriverPostgres {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	} else {
		// sqlite 只允许单个写连接
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&models.Sample{}); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	if err := legacy.Migrate(logger, db); err != nil {
		logger.Warn("导入旧版采样数据失败", zap.Error(err))
	}

	logger.Info("数据库已就绪", zap.String("driver", driverName(cfg.Driver)))
	return db, nil
}

func sqliteDSN(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}
	return nil
}

func driverName(driver string) string {
	if driver == "" {
		return DriverSqlite
	}
	return driver
}
