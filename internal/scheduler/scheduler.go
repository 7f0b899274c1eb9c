package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dushixiang/selfmon/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	TaskCollection = "collection"
	TaskRetention  = "retention"
)

// Task 调度任务（轻量级，仅存储必要信息）
type Task struct {
	Name     string
	Interval time.Duration
	EntryID  cron.EntryID // cron 任务的 ID
}

// Scheduler 采集与清理调度器，两个任务使用独立的定时器
type Scheduler struct {
	mu                 sync.RWMutex
	cron               *cron.Cron
	tasks              map[string]*Task
	monitorService     *service.MonitorService
	collectionInterval time.Duration
	retentionInterval  time.Duration
	logger             *zap.Logger
	ctx                context.Context
	cancel             context.CancelFunc
	initial            sync.WaitGroup
}

// NewScheduler 创建调度器
func NewScheduler(monitorService *service.MonitorService, logger *zap.Logger, collectionInterval, retentionInterval time.Duration) *Scheduler {
	cl := cronLogger{sugar: logger.Sugar()}
	return &Scheduler{
		cron:               cron.New(cron.WithLogger(cl)),
		tasks:              make(map[string]*Task),
		monitorService:     monitorService,
		collectionInterval: collectionInterval,
		retentionInterval:  retentionInterval,
		logger:             logger,
	}
}

// Start 启动调度器，并立即执行一轮采集
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("启动采集调度器",
		zap.Duration("collectionInterval", s.collectionInterval),
		zap.Duration("retentionInterval", s.retentionInterval))

	collectJob, err := s.addTask(TaskCollection, s.collectionInterval, s.RunCollection)
	if err != nil {
		return err
	}
	if _, err := s.addTask(TaskRetention, s.retentionInterval, s.RunRetention); err != nil {
		return err
	}

	s.cron.Start()

	// 首轮采集不等待第一个周期，与定时触发共用同一个串行包装
	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		collectJob.Run()
	}()
	return nil
}

// Stop 停止调度器，等待运行中的任务结束
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	// 停止 cron 调度器
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.initial.Wait()

	s.logger.Info("采集调度器已停止")
}

// addTask 添加周期任务，上一轮未结束时跳过本轮
func (s *Scheduler) addTask(name string, interval time.Duration, fn func()) (cron.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if interval < time.Second {
		interval = time.Second
	}

	// 构建 cron 表达式: @every 1m0s
	spec := fmt.Sprintf("@every %s", interval)

	cl := cronLogger{sugar: s.logger.Sugar()}
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(fn))
	entryID, err := s.cron.AddJob(spec, job)
	if err != nil {
		return nil, fmt.Errorf("添加 cron 任务失败: %w", err)
	}

	s.tasks[name] = &Task{
		Name:     name,
		Interval: interval,
		EntryID:  entryID,
	}

	s.logger.Info("添加调度任务",
		zap.String("task", name),
		zap.Duration("interval", interval))
	return job, nil
}

// RunCollection 执行一轮采集
func (s *Scheduler) RunCollection() {
	ctx := s.context()
	if ctx.Err() != nil {
		return
	}
	s.monitorService.RunCollectionCycle(ctx)
}

// RunRetention 执行一次过期数据清理，错误只记录日志
func (s *Scheduler) RunRetention() {
	ctx := s.context()
	if ctx.Err() != nil {
		return
	}
	_, _ = s.monitorService.RunRetentionSweep(ctx)
}

func (s *Scheduler) context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// GetTaskCount 获取任务数量
func (s *Scheduler) GetTaskCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// TaskStatus 任务状态
type TaskStatus struct {
	Name        string `json:"name"`
	Interval    string `json:"interval"`
	NextRunTime string `json:"nextRunTime,omitempty"`
	PrevRunTime string `json:"prevRunTime,omitempty"`
}

// GetTaskStatus 获取任务状态
func (s *Scheduler) GetTaskStatus() []TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// 获取 cron 的所有条目
	entryMap := make(map[cron.EntryID]cron.Entry)
	for _, entry := range s.cron.Entries() {
		entryMap[entry.ID] = entry
	}

	statuses := make([]TaskStatus, 0, len(s.tasks))
	for _, name := range []string{TaskCollection, TaskRetention} {
		task, ok := s.tasks[name]
		if !ok {
			continue
		}
		status := TaskStatus{
			Name:     task.Name,
			Interval: task.Interval.String(),
		}
		// 从 cron entry 获取执行时间
		if entry, exists := entryMap[task.EntryID]; exists {
			if !entry.Next.IsZero() {
				status.NextRunTime = entry.Next.Format(time.RFC3339)
			}
			if !entry.Prev.IsZero() {
				status.PrevRunTime = entry.Prev.Format(time.RFC3339)
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// cronLogger 将 cron 日志输出到 zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
