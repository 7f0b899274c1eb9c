package service

import (
	"context"
	"testing"
	"time"

	"github.com/dushixiang/selfmon/internal/metric"
	"github.com/dushixiang/selfmon/internal/models"
	"github.com/dushixiang/selfmon/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newChartFixture(t *testing.T, divisor metric.Divisor) (*ChartService, repo.SampleStore, time.Time) {
	t.Helper()
	store := newTestStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	agents := []models.Agent{{Name: "web1"}, {Name: "web2"}}

	s := NewChartService(zaptest.NewLogger(t), store, agents, 10, divisor, time.Minute)
	s.now = func() time.Time { return now }
	return s, store, now
}

// appendMinutes 写入最近 n 分钟的采样，cpu 为 1..n
func appendMinutes(t *testing.T, store repo.SampleStore, name string, now time.Time, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		status := models.StatusOnline
		if i%5 == 4 {
			status = models.StatusOffline
		}
		require.NoError(t, store.Append(context.Background(), &models.Sample{
			AgentName: name,
			Status:    status,
			CPUUsage:  float64(i + 1),
			Timestamp: now.Add(-time.Duration(n-i) * time.Minute).UnixMilli(),
		}))
	}
}

func TestQueryLastHourAndToday(t *testing.T) {
	s, store, now := newChartFixture(t, metric.DivisorFixed)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, &models.Sample{AgentName: "web1", Status: models.StatusOnline, Timestamp: now.Add(-3 * time.Hour).UnixMilli()}))
	require.NoError(t, store.Append(ctx, &models.Sample{AgentName: "web1", Status: models.StatusOnline, Timestamp: now.Add(-30 * time.Minute).UnixMilli()}))
	require.NoError(t, store.Append(ctx, &models.Sample{AgentName: "web1", Status: models.StatusOnline, Timestamp: now.Add(-25 * time.Hour).UnixMilli()}))

	hour, err := s.QueryLastHour(ctx, "web1")
	require.NoError(t, err)
	assert.Len(t, hour, 1)

	today, err := s.QueryToday(ctx, "web1")
	require.NoError(t, err)
	assert.Len(t, today, 2)

	_, err = s.QueryLastHour(ctx, "unknown")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestGetCharts(t *testing.T) {
	s, store, now := newChartFixture(t, metric.DivisorFixed)
	appendMinutes(t, store, "web1", now, 23)
	ctx := context.Background()

	hour, err := s.GetCharts(ctx, "web1", "")
	require.NoError(t, err)
	assert.Equal(t, RangeHour, hour.Range)
	assert.Equal(t, 1, hour.BucketSize)
	assert.Len(t, hour.Series[0].Data, 23)
	assert.Len(t, hour.Uptime, 23)

	day, err := s.GetCharts(ctx, "web1", RangeDay)
	require.NoError(t, err)
	assert.Equal(t, 10, day.BucketSize)
	require.Len(t, day.Series[0].Data, 3)
	assert.InDelta(t, 5.5, day.Series[0].Data[0].Value, 1e-9)
	assert.InDelta(t, 15.5, day.Series[0].Data[1].Value, 1e-9)
	// 尾桶 21+22+23 除以 10
	assert.InDelta(t, 6.6, day.Series[0].Data[2].Value, 1e-9)
	// 在线状态不降采样
	assert.Len(t, day.Uptime, 23)
	assert.False(t, day.Uptime[4].Online)

	_, err = s.GetCharts(ctx, "web1", "week")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = s.GetCharts(ctx, "nobody", RangeDay)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestGetChartsCountDivisor(t *testing.T) {
	s, store, now := newChartFixture(t, metric.DivisorCount)
	appendMinutes(t, store, "web1", now, 23)

	day, err := s.GetCharts(context.Background(), "web1", RangeDay)
	require.NoError(t, err)
	require.Len(t, day.Series[0].Data, 3)
	assert.InDelta(t, 22.0, day.Series[0].Data[2].Value, 1e-9)
}

func TestListAgentsLatest(t *testing.T) {
	s, store, now := newChartFixture(t, metric.DivisorFixed)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, &models.Sample{
		AgentName:   "web1",
		Status:      models.StatusOnline,
		CPUUsage:    92.5,
		MemoryUsage: 15.5,
		Timestamp:   now.UnixMilli(),
	}))

	overviews, err := s.ListAgentsLatest(ctx)
	require.NoError(t, err)
	require.Len(t, overviews, 2)

	assert.Equal(t, "web1", overviews[0].Name)
	assert.True(t, overviews[0].Online)
	assert.Equal(t, "92.50", overviews[0].CPU)
	assert.Equal(t, "15.50", overviews[0].Memory)
	assert.Equal(t, metric.LevelCritical, overviews[0].CPULevel)
	assert.Equal(t, metric.LevelNormal, overviews[0].MemoryLevel)

	assert.Equal(t, "web2", overviews[1].Name)
	assert.False(t, overviews[1].Online)
	assert.Nil(t, overviews[1].Latest)
}
