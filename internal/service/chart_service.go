package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dushixiang/selfmon/internal/metric"
	"github.com/dushixiang/selfmon/internal/models"
	"github.com/dushixiang/selfmon/internal/protocol"
	"github.com/dushixiang/selfmon/internal/repo"
	"github.com/go-orz/cache"
	"go.uber.org/zap"
)

const (
	RangeHour = "hour"
	RangeDay  = "day"

	chartCacheTTL = 15 * time.Second
)

var (
	// ErrAgentNotFound 探针未配置
	ErrAgentNotFound = errors.New("agent not found")
	ErrInvalidRange  = errors.New("unsupported range")
)

// AgentOverview 探针概览（用于列表展示）
type AgentOverview struct {
	Name        string         `json:"name"`
	Online      bool           `json:"online"`
	Latest      *models.Sample `json:"latest"`                // 最近一条采样，没有时为 null
	CPU         string         `json:"cpu,omitempty"`         // 两位小数，如 15.50
	Memory      string         `json:"memory,omitempty"`      // 两位小数
	CPULevel    string         `json:"cpuLevel,omitempty"`    // normal/warning/critical
	MemoryLevel string         `json:"memoryLevel,omitempty"` // normal/warning/critical
	Uptime      string         `json:"uptime,omitempty"`      // 如 1d 2h 3m
	Hostname    string         `json:"hostname,omitempty"`
	Version     string         `json:"version,omitempty"` // Monit 版本
}

// ChartService 图表查询服务：窗口查询 + 降采样，只读
type ChartService struct {
	logger     *zap.Logger
	store      repo.SampleStore
	agents     []models.Agent
	agentIndex map[string]models.Agent
	bucketSize int
	divisor    metric.Divisor
	statusTTL  time.Duration
	now        func() time.Time

	chartCache  cache.Cache[string, *metric.ChartResponse]
	statusCache cache.Cache[string, *protocol.MonitStatus]
}

// NewChartService 创建图表服务，statusTTL 为原始状态文档的缓存时间（通常为采集周期的两倍）
func NewChartService(logger *zap.Logger, store repo.SampleStore, agents []models.Agent, bucketSize int, divisor metric.Divisor, statusTTL time.Duration) *ChartService {
	agentIndex := make(map[string]models.Agent, len(agents))
	for _, agent := range agents {
		agentIndex[agent.Name] = agent
	}
	return &ChartService{
		logger:      logger,
		store:       store,
		agents:      agents,
		agentIndex:  agentIndex,
		bucketSize:  bucketSize,
		divisor:     divisor,
		statusTTL:   statusTTL,
		now:         time.Now,
		chartCache:  cache.New[string, *metric.ChartResponse](time.Minute),
		statusCache: cache.New[string, *protocol.MonitStatus](time.Minute),
	}
}

// RecordStatus 实现 StatusRecorder
func (s *ChartService) RecordStatus(agentName string, status *protocol.MonitStatus) {
	if status == nil {
		return
	}
	s.statusCache.Set(agentName, status, s.statusTTL)
}

func (s *ChartService) checkAgent(name string) error {
	if _, ok := s.agentIndex[name]; !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return nil
}

// ListAgentsLatest 所有探针及其最近一条采样
func (s *ChartService) ListAgentsLatest(ctx context.Context) ([]AgentOverview, error) {
	overviews := make([]AgentOverview, 0, len(s.agents))
	for _, agent := range s.agents {
		latest, err := s.store.GetLatest(ctx, agent.Name)
		if err != nil {
			return nil, fmt.Errorf("查询探针 %s 最近采样失败: %w", agent.Name, err)
		}

		overview := AgentOverview{
			Name:   agent.Name,
			Latest: latest,
		}
		if latest != nil && latest.IsOnline() {
			overview.Online = true
			overview.CPU = metric.FormatUsage(latest.CPUUsage)
			overview.Memory = metric.FormatUsage(latest.MemoryUsage)
			overview.CPULevel = metric.UsageLevel(latest.CPUUsage)
			overview.MemoryLevel = metric.UsageLevel(latest.MemoryUsage)

			if status, ok := s.statusCache.Get(agent.Name); ok && status.Server != nil {
				overview.Uptime = metric.FormatUptime(status.Server.Uptime)
				overview.Hostname = status.Server.LocalHostname
				overview.Version = status.Server.Version
			}
		}
		overviews = append(overviews, overview)
	}
	return overviews, nil
}

// QueryLastHour 最近一小时的原始采样
func (s *ChartService) QueryLastHour(ctx context.Context, name string) ([]models.Sample, error) {
	return s.queryWindow(ctx, name, time.Hour)
}

// QueryToday 最近 24 小时的原始采样
func (s *ChartService) QueryToday(ctx context.Context, name string) ([]models.Sample, error) {
	return s.queryWindow(ctx, name, 24*time.Hour)
}

func (s *ChartService) queryWindow(ctx context.Context, name string, window time.Duration) ([]models.Sample, error) {
	if err := s.checkAgent(name); err != nil {
		return nil, err
	}
	samples, err := s.store.QueryWindow(ctx, name, s.now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("查询探针 %s 采样失败: %w", name, err)
	}
	return samples, nil
}

// GetCharts 图表数据：hour 为原始数据，day 按 bucketSize 降采样；在线状态始终逐点输出
func (s *ChartService) GetCharts(ctx context.Context, name, rangeName string) (*metric.ChartResponse, error) {
	if rangeName == "" {
		rangeName = RangeHour
	}
	if rangeName != RangeHour && rangeName != RangeDay {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRange, rangeName)
	}

	cacheKey := name + ":" + rangeName
	if cached, ok := s.chartCache.Get(cacheKey); ok {
		return cached, nil
	}

	var (
		samples    []models.Sample
		err        error
		bucketSize = 1
	)
	if rangeName == RangeDay {
		samples, err = s.QueryToday(ctx, name)
		bucketSize = s.bucketSize
	} else {
		samples, err = s.QueryLastHour(ctx, name)
	}
	if err != nil {
		return nil, err
	}

	cpu := metric.ToPoints(samples, metric.CPU)
	memory := metric.ToPoints(samples, metric.Memory)
	if bucketSize > 1 {
		cpu = metric.DownsampleWith(cpu, bucketSize, s.divisor)
		memory = metric.DownsampleWith(memory, bucketSize, s.divisor)
	}

	resp := &metric.ChartResponse{
		Agent:      name,
		Range:      rangeName,
		BucketSize: bucketSize,
		Series: []metric.Series{
			{Name: "cpu", Data: cpu},
			{Name: "memory", Data: memory},
		},
		Uptime: metric.ToUptimeSeries(samples),
	}
	s.chartCache.Set(cacheKey, resp, chartCacheTTL)
	return resp, nil
}
