package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dushixiang/selfmon/internal/collector"
	"github.com/dushixiang/selfmon/internal/models"
	"github.com/dushixiang/selfmon/internal/protocol"
	"github.com/dushixiang/selfmon/internal/repo"
	"github.com/go-errors/errors"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"
)

const fallbackAppendTimeout = 5 * time.Second

// Collector 探针采集接口
type Collector interface {
	Collect(ctx context.Context, agent models.Agent) collector.Outcome
}

// StatusRecorder 记录最近一次成功采集的原始状态文档（仅用于展示）
type StatusRecorder interface {
	RecordStatus(agentName string, status *protocol.MonitStatus)
}

// AgentResult 单个探针的本轮处理结果
type AgentResult struct {
	Agent    string
	Status   string
	Alerted  bool
	Reason   string // 失败原因
	StoreErr error
}

// CycleReport 一轮采集汇总
type CycleReport struct {
	CycleID  string
	Started  time.Time
	Duration time.Duration
	Results  []AgentResult
}

// Count 统计指定状态的探针数量
func (r *CycleReport) Count(status string) int {
	n := 0
	for _, result := range r.Results {
		if result.Status == status {
			n++
		}
	}
	return n
}

// Alerts 本轮发出的告警数
func (r *CycleReport) Alerts() int {
	n := 0
	for _, result := range r.Results {
		if result.Alerted {
			n++
		}
	}
	return n
}

// MonitorService 采集流水线：采集 -> 判定 -> 持久化 -> 告警
type MonitorService struct {
	logger       *zap.Logger
	agents       []models.Agent
	collector    Collector
	store        repo.SampleStore
	tracker      *StateTracker
	alertService *AlertService
	recorder     StatusRecorder
	retention    time.Duration
	now          func() time.Time
}

// MonitorOption 可选配置
type MonitorOption func(*MonitorService)

// WithClock 替换时钟（测试使用）
func WithClock(now func() time.Time) MonitorOption {
	return func(s *MonitorService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStatusRecorder 设置原始状态记录器
func WithStatusRecorder(recorder StatusRecorder) MonitorOption {
	return func(s *MonitorService) {
		s.recorder = recorder
	}
}

func NewMonitorService(logger *zap.Logger, agents []models.Agent, c Collector, store repo.SampleStore,
	tracker *StateTracker, alertService *AlertService, retention time.Duration, opts ...MonitorOption) *MonitorService {

	s := &MonitorService{
		logger:       logger,
		agents:       agents,
		collector:    c,
		store:        store,
		tracker:      tracker,
		alertService: alertService,
		retention:    retention,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Agents 已配置的探针
func (s *MonitorService) Agents() []models.Agent {
	return s.agents
}

// RunCollectionCycle 并发采集所有探针，单个探针的任何错误都不影响其它探针
func (s *MonitorService) RunCollectionCycle(ctx context.Context) *CycleReport {
	start := time.Now()
	report := &CycleReport{
		CycleID: uuid.NewString(),
		Started: s.now(),
	}

	report.Results = iter.Map(s.agents, func(agent *models.Agent) AgentResult {
		return s.processAgent(ctx, report.CycleID, *agent)
	})
	report.Duration = time.Since(start)

	s.logger.Info("采集周期完成",
		zap.String("cycleId", report.CycleID),
		zap.Int("agents", len(report.Results)),
		zap.Int("online", report.Count(models.StatusOnline)),
		zap.Int("offline", report.Count(models.StatusOffline)),
		zap.Int("alerts", report.Alerts()),
		zap.Duration("duration", report.Duration))

	return report
}

// processAgent 处理单个探针，无论成功、失败还是 panic，本轮都写入一条采样
func (s *MonitorService) processAgent(ctx context.Context, cycleID string, agent models.Agent) (result AgentResult) {
	result.Agent = agent.Name
	appended := false

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("处理探针时发生panic",
				zap.String("cycleId", cycleID),
				zap.String("agent", agent.Name),
				zap.Any("panic", r),
				zap.String("stack", errors.Wrap(r, 2).ErrorStack()))
			result.Reason = fmt.Sprintf("panic: %v", r)
			if !appended {
				result.Status = models.StatusOffline
				result.StoreErr = s.appendOffline(cycleID, agent.Name)
			}
		}
	}()

	outcome := s.collect(ctx, cycleID, agent)
	now := s.now()

	// 上一条采样必须在写入本轮采样之前查询
	last, lookupErr := s.store.GetLatest(ctx, agent.Name)
	if lookupErr != nil {
		s.logger.Error("查询探针最近状态失败",
			zap.String("cycleId", cycleID),
			zap.String("agent", agent.Name),
			zap.Error(lookupErr))
	}

	decision := s.tracker.Evaluate(agent, outcome, last, now)
	if lookupErr != nil && decision.ShouldAlert {
		// 无法确认上一状态时不告警，避免重复通知
		decision.ShouldAlert = false
	}
	result.Status = decision.PersistStatus

	switch o := outcome.(type) {
	case *collector.Success:
		if s.recorder != nil {
			s.recorder.RecordStatus(agent.Name, o.Status)
		}
	case *collector.Failure:
		result.Reason = o.Error()
		s.logger.Warn("采集探针失败",
			zap.String("cycleId", cycleID),
			zap.String("agent", agent.Name),
			zap.String("address", agent.Address),
			zap.String("kind", string(o.Kind)),
			zap.String("reason", o.Reason))
	}

	sample := BuildSample(agent.Name, outcome, decision, now)
	appended = true
	if err := s.store.Append(ctx, sample); err != nil {
		result.StoreErr = err
		s.logger.Error("保存采样失败",
			zap.String("cycleId", cycleID),
			zap.String("agent", agent.Name),
			zap.Error(err))
	}

	if decision.Suppressed {
		s.logger.Info("静默时段内，跳过离线告警",
			zap.String("cycleId", cycleID),
			zap.String("agent", agent.Name))
	}
	if decision.ShouldAlert {
		result.Alerted = s.alertService.FireOffline(agent, result.Reason, now)
	} else if decision.PersistStatus == models.StatusOffline && !decision.Suppressed {
		s.logger.Debug("探针已处于离线状态", zap.String("agent", agent.Name))
	}

	return result
}

// collect 调用采集器，采集器 panic 时按采集失败处理
func (s *MonitorService) collect(ctx context.Context, cycleID string, agent models.Agent) (outcome collector.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("采集探针时发生panic",
				zap.String("cycleId", cycleID),
				zap.String("agent", agent.Name),
				zap.Any("panic", r),
				zap.String("stack", errors.Wrap(r, 2).ErrorStack()))
			outcome = &collector.Failure{
				Kind:   collector.FailurePanic,
				Reason: fmt.Sprint(r),
			}
		}
	}()
	return s.collector.Collect(ctx, agent)
}

// appendOffline 流水线中途 panic 时补写一条离线采样，使用独立的 context
func (s *MonitorService) appendOffline(cycleID, agentName string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("补写离线采样时发生panic: %v", r)
		}
		if err != nil {
			s.logger.Error("补写离线采样失败",
				zap.String("cycleId", cycleID),
				zap.String("agent", agentName),
				zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), fallbackAppendTimeout)
	defer cancel()
	return s.store.Append(ctx, models.NewOfflineSample(agentName, s.now().UnixMilli()))
}

// RunRetentionSweep 删除保留期之前的采样
func (s *MonitorService) RunRetentionSweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("清理过期采样失败", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0, err
	}
	s.logger.Info("清理过期采样完成",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted))
	return deleted, nil
}
