package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dushixiang/selfmon/internal/collector"
	"github.com/dushixiang/selfmon/internal/config"
	"github.com/dushixiang/selfmon/internal/database"
	"github.com/dushixiang/selfmon/internal/handler"
	"github.com/dushixiang/selfmon/internal/metric"
	"github.com/dushixiang/selfmon/internal/models"
	"github.com/dushixiang/selfmon/internal/repo"
	"github.com/dushixiang/selfmon/internal/scheduler"
	"github.com/dushixiang/selfmon/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Server 组装存储、采集、告警、调度与 HTTP 接口
type Server struct {
	cfg          *config.AppConfig
	logger       *zap.Logger
	store        repo.SampleStore
	alertService *service.AlertService
	scheduler    *scheduler.Scheduler
	echo         *echo.Echo
	httpDone     chan struct{}
	httpErr      chan error
}

// New 按配置创建服务
func New(cfg *config.AppConfig, logger *zap.Logger) (*Server, error) {
	store, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	s, err := newWithStore(cfg, logger, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

func newWithStore(cfg *config.AppConfig, logger *zap.Logger, store repo.SampleStore) (*Server, error) {
	agents := Agents(cfg)

	policy, err := service.NewQuietHoursPolicy(cfg.Alert.QuietHours)
	if err != nil {
		return nil, fmt.Errorf("静默时段配置错误: %w", err)
	}
	var alertPolicy service.AlertPolicy = service.NeverSuppress
	if policy != nil {
		alertPolicy = policy
	}

	channels := []service.Dispatcher{service.NewLogDispatcher(logger)}
	if cfg.Mail.Enabled {
		mail, err := service.NewMailDispatcher(logger, cfg.Mail)
		if err != nil {
			return nil, err
		}
		channels = append(channels, mail)
	}
	alertService := service.NewAlertService(logger, cfg.Alert.Enabled, service.NewNotifier(logger, channels...))

	chartService := service.NewChartService(logger, store, agents, cfg.Chart.BucketSize,
		metric.Divisor(cfg.Chart.Divisor), 2*cfg.Collector.Interval)

	agentCollector := collector.NewAgentCollector(logger, collector.Options{
		Timeout:    cfg.Collector.Timeout,
		StatusPath: cfg.Collector.StatusPath,
	})
	monitorService := service.NewMonitorService(logger, agents, agentCollector, store,
		service.NewStateTracker(alertPolicy), alertService, cfg.Retention.Window,
		service.WithStatusRecorder(chartService))

	sched := scheduler.NewScheduler(monitorService, logger, cfg.Collector.Interval, cfg.Retention.SweepInterval)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogMethod:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("请求",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))
	handler.NewAgentHandler(logger, chartService, sched).Register(e.Group("/api"))

	return &Server{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		alertService: alertService,
		scheduler:    sched,
		echo:         e,
	}, nil
}

// Agents 将配置中的探针转换为模型
func Agents(cfg *config.AppConfig) []models.Agent {
	agents := make([]models.Agent, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents = append(agents, models.Agent{
			Name:     a.Name,
			Address:  a.HostPort(),
			Username: a.Username,
			Password: a.Password,
		})
	}
	return agents
}

// Handler HTTP 处理器
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start 启动调度器与 HTTP 服务，HTTP 服务在后台运行
func (s *Server) Start(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}

	s.httpDone = make(chan struct{})
	s.httpErr = make(chan error, 1)
	go func() {
		defer close(s.httpDone)
		s.logger.Info("HTTP 服务启动", zap.String("addr", s.cfg.Server.Addr))
		if err := s.echo.Start(s.cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP 服务异常退出", zap.Error(err))
			s.httpErr <- err
		}
	}()
	return nil
}

// Err HTTP 服务异常退出时收到错误，Start 之前为 nil
func (s *Server) Err() <-chan error {
	return s.httpErr
}

// Shutdown 依次停止调度器、HTTP 服务、告警发送，最后关闭存储
func (s *Server) Shutdown(ctx context.Context) error {
	s.scheduler.Stop()

	var errs []error
	if err := s.echo.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("关闭 HTTP 服务失败: %w", err))
	}
	if s.httpDone != nil {
		select {
		case <-s.httpDone:
		case <-ctx.Done():
		}
	}

	done := make(chan struct{})
	go func() {
		s.alertService.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("等待告警发送超时")
	}

	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("关闭存储失败: %w", err))
	}
	s.logger.Info("服务已停止")
	return errors.Join(errs...)
}

// Run 启动服务并阻塞到 ctx 结束或 HTTP 服务异常退出
func Run(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) error {
	s, err := New(cfg, logger)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		_ = s.store.Close()
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("收到退出信号，正在关闭...")
	case err := <-s.Err():
		runErr = fmt.Errorf("HTTP 服务启动失败: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(runErr, s.Shutdown(shutdownCtx))
}
