package metric

// DataPoint 统一的指标数据点结构
type DataPoint struct {
	Timestamp int64   `json:"timestamp"` // 毫秒时间戳
	Value     float64 `json:"value"`
}

// UptimePoint 在线状态数据点
type UptimePoint struct {
	Timestamp int64 `json:"timestamp"` // 毫秒时间戳
	Online    bool  `json:"online"`
}

// Series 指标系列
type Series struct {
	Name string      `json:"name"` // 系列名称（cpu/memory）
	Data []DataPoint `json:"data"` // 数据点列表
}

// ChartResponse 图表查询响应
type ChartResponse struct {
	Agent      string        `json:"agent"`
	Range      string        `json:"range"`      // hour/day
	BucketSize int           `json:"bucketSize"` // 1 表示未降采样
	Series     []Series      `json:"series"`
	Uptime     []UptimePoint `json:"uptime"`
}
