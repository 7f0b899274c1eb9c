package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dushixiang/selfmon/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSONFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "selfmon.log")
	log := New(config.LogConfig{Level: "warn", Format: "json", File: file, MaxSize: 1})

	log.Info("忽略的日志")
	log.Warn("探针离线", zap.String("agent", "web1"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "探针离线", entry["msg"])
	assert.Equal(t, "web1", entry["agent"])
	assert.Contains(t, entry, "caller")
}

func TestNewLevels(t *testing.T) {
	assert.True(t, New(config.LogConfig{Level: "debug"}).Core().Enabled(zap.DebugLevel))
	assert.False(t, New(config.LogConfig{Level: "info"}).Core().Enabled(zap.DebugLevel))
	assert.False(t, New(config.LogConfig{Level: "error"}).Core().Enabled(zap.WarnLevel))
	assert.True(t, New(config.LogConfig{Level: "unknown"}).Core().Enabled(zap.InfoLevel))
}
