package metric

import "github.com/dushixiang/selfmon/internal/models"

// Divisor 降采样时尾部不完整分桶的除数策略
type Divisor string

const (
	// DivisorFixed 始终除以分桶大小（尾桶会被拉低，与旧版仪表盘一致）
	DivisorFixed Divisor = "fixed"
	// DivisorCount 除以桶内实际样本数
	DivisorCount Divisor = "count"
)

// Extractor 从采样中取出某个指标值
type Extractor func(s *models.Sample) float64

// CPU 取 CPU 使用率
func CPU(s *models.Sample) float64 { return s.CPUUsage }

// Memory 取内存使用率
func Memory(s *models.Sample) float64 { return s.MemoryUsage }

// ToPoints 原样转换为数据点，不做聚合
func ToPoints(samples []models.Sample, value Extractor) []DataPoint {
	points := make([]DataPoint, 0, len(samples))
	for i := range samples {
		points = append(points, DataPoint{
			Timestamp: samples[i].Timestamp,
			Value:     value(&samples[i]),
		})
	}
	return points
}

// Downsample 按连续固定大小分桶求平均，每桶输出一个点，时间取桶内第一个点。
// 尾部不足 bucketSize 的分桶同样除以 bucketSize。
func Downsample(points []DataPoint, bucketSize int) []DataPoint {
	return downsample(points, bucketSize, DivisorFixed)
}

// DownsampleMean 与 Downsample 相同，但尾桶按实际样本数求平均
func DownsampleMean(points []DataPoint, bucketSize int) []DataPoint {
	return downsample(points, bucketSize, DivisorCount)
}

// DownsampleWith 按指定除数策略降采样
func DownsampleWith(points []DataPoint, bucketSize int, divisor Divisor) []DataPoint {
	return downsample(points, bucketSize, divisor)
}

func downsample(points []DataPoint, bucketSize int, divisor Divisor) []DataPoint {
	if bucketSize <= 1 {
		out := make([]DataPoint, len(points))
		copy(out, points)
		return out
	}

	out := make([]DataPoint, 0, (len(points)+bucketSize-1)/bucketSize)
	for start := 0; start < len(points); start += bucketSize {
		end := min(start+bucketSize, len(points))

		var sum float64
		for _, p := range points[start:end] {
			sum += p.Value
		}

		n := bucketSize
		if divisor == DivisorCount {
			n = end - start
		}

		out = append(out, DataPoint{
			Timestamp: points[start].Timestamp,
			Value:     sum / float64(n),
		})
	}
	return out
}

// ToUptimeSeries 每个采样对应一个在线/离线点
func ToUptimeSeries(samples []models.Sample) []UptimePoint {
	points := make([]UptimePoint, 0, len(samples))
	for i := range samples {
		points = append(points, UptimePoint{
			Timestamp: samples[i].Timestamp,
			Online:    samples[i].IsOnline(),
		})
	}
	return points
}
