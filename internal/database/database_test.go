package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dushixiang/selfmon/internal/config"
	"github.com/dushixiang/selfmon/internal/models"
	"github.com/dushixiang/selfmon/internal/repo"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func TestOpenDrivers(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
	}{
		{"sqlite", config.DatabaseConfig{Driver: DriverSqlite, Path: filepath.Join(dir, "data", "selfmon.db")}},
		{"bolt", config.DatabaseConfig{Driver: DriverBolt, Path: filepath.Join(dir, "data", "selfmon.bolt")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(tt.cfg, zaptest.NewLogger(t))
			require.NoError(t, err)
			defer store.Close()

			ctx := context.Background()
			require.NoError(t, store.Append(ctx, &models.Sample{AgentName: "web1", Status: models.StatusOnline, CPUUsage: 1}))
			latest, err := store.GetLatest(ctx, "web1")
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, 1.0, latest.CPUUsage)
		})
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql"}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "mysql")
}

func TestImportLegacyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.db")

	// 旧版部署的表结构
	legacyDB, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, legacyDB.Exec(`CREATE TABLE agents (
		id INTEGER PRIMARY KEY,
		name TEXT,
		status TEXT,
		cpu_usage REAL,
		memory_usage REAL,
		time DATETIME DEFAULT CURRENT_TIMESTAMP
	)`).Error)
	require.NoError(t, legacyDB.Exec(`INSERT INTO agents (name, status, cpu_usage, memory_usage, time) VALUES
		('web1', 'online', 15.5, 40.2, '2024-05-01 12:00:00'),
		('web1', 'offline', 0, 0, '2024-05-01 12:01:00'),
		('nas', 'online', 3, 20, 'garbage')`).Error)
	sqlDB, err := legacyDB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	store, err := Open(config.DatabaseConfig{Driver: DriverSqlite, Path: path}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.Local)
	samples, err := store.QueryWindow(ctx, "web1", since)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, models.StatusOnline, samples[0].Status)
	assert.Equal(t, 15.5, samples[0].CPUUsage)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local).UnixMilli(), samples[0].Timestamp)
	assert.Equal(t, models.StatusOffline, samples[1].Status)

	nas, err := store.QueryWindow(ctx, "nas", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, nas)

	db := store.(*repo.SampleRepo).DB()
	assert.False(t, db.Migrator().HasTable("agents"))
	assert.True(t, db.Migrator().HasTable("agents_imported"))
}
