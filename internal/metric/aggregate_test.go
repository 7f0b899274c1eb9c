package metric

import (
	"testing"

	"github.com/dushixiang/selfmon/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqPoints(n int) []DataPoint {
	points := make([]DataPoint, 0, n)
	for i := 0; i < n; i++ {
		points = append(points, DataPoint{Timestamp: int64(1000 + i*60000), Value: float64(i + 1)})
	}
	return points
}

func TestDownsample(t *testing.T) {
	points := seqPoints(23)

	out := Downsample(points, 10)
	require.Len(t, out, 3)

	assert.Equal(t, points[0].Timestamp, out[0].Timestamp)
	assert.Equal(t, points[10].Timestamp, out[1].Timestamp)
	assert.Equal(t, points[20].Timestamp, out[2].Timestamp)

	assert.InDelta(t, 5.5, out[0].Value, 1e-9)
	assert.InDelta(t, 15.5, out[1].Value, 1e-9)
	// 尾桶只有 3 个点，仍除以 10
	assert.InDelta(t, 6.6, out[2].Value, 1e-9)
}

func TestDownsampleMean(t *testing.T) {
	out := DownsampleMean(seqPoints(23), 10)
	require.Len(t, out, 3)
	assert.InDelta(t, 5.5, out[0].Value, 1e-9)
	assert.InDelta(t, 22.0, out[2].Value, 1e-9)

	assert.Equal(t, Downsample(seqPoints(23), 10), DownsampleWith(seqPoints(23), 10, DivisorFixed))
	assert.Equal(t, out, DownsampleWith(seqPoints(23), 10, DivisorCount))
}

func TestDownsampleEdgeCases(t *testing.T) {
	assert.Empty(t, Downsample(nil, 10))

	// 分桶大小为 1 时原样返回副本
	points := seqPoints(5)
	out := Downsample(points, 1)
	assert.Equal(t, points, out)
	out[0].Value = 100
	assert.Equal(t, 1.0, points[0].Value)

	assert.Equal(t, seqPoints(3), Downsample(seqPoints(3), 0))

	exact := Downsample(seqPoints(20), 10)
	assert.Len(t, exact, 2)

	// 点数不足一个分桶
	short := Downsample(seqPoints(4), 10)
	require.Len(t, short, 1)
	assert.InDelta(t, 1.0, short[0].Value, 1e-9)
}

func TestToPointsAndUptime(t *testing.T) {
	samples := []models.Sample{
		{AgentName: "web1", Status: models.StatusOnline, CPUUsage: 15.5, MemoryUsage: 40, Timestamp: 1000},
		{AgentName: "web1", Status: models.StatusOffline, Timestamp: 2000},
		{AgentName: "web1", Status: models.StatusOnline, CPUUsage: 3, MemoryUsage: 41, Timestamp: 3000},
	}

	assert.Equal(t, []DataPoint{{1000, 15.5}, {2000, 0}, {3000, 3}}, ToPoints(samples, CPU))
	assert.Equal(t, []DataPoint{{1000, 40}, {2000, 0}, {3000, 41}}, ToPoints(samples, Memory))

	assert.Equal(t, []UptimePoint{
		{Timestamp: 1000, Online: true},
		{Timestamp: 2000, Online: false},
		{Timestamp: 3000, Online: true},
	}, ToUptimeSeries(samples))

	assert.Empty(t, ToUptimeSeries(nil))
}
