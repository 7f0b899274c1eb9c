package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dushixiang/selfmon/internal/config"
	"github.com/dushixiang/selfmon/internal/server"
	"github.com/kardianos/service"
	"go.uber.org/zap"
)

// program 实现 service.Interface
type program struct {
	cfg    *config.AppConfig
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// Start 启动服务，不能阻塞
func (p *program) Start(s service.Service) error {
	p.logger.Info("selfmon 服务启动中...")

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		if err := server.Run(ctx, p.cfg, p.logger); err != nil {
			p.logger.Error("服务运行出错", zap.Error(err))
			if ctx.Err() == nil {
				// 非正常退出，交给系统服务管理器重启
				_ = p.logger.Sync()
				os.Exit(1)
			}
		}
	}()
	return nil
}

// Stop 停止服务
func (p *program) Stop(s service.Service) error {
	p.logger.Info("selfmon 服务停止中...")

	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}

	p.logger.Info("selfmon 服务已停止")
	return nil
}

// ServiceManager 服务管理器
type ServiceManager struct {
	service service.Service
}

// NewServiceManager 创建服务管理器，configPath 会写入服务的启动参数
func NewServiceManager(cfg *config.AppConfig, configPath string, logger *zap.Logger) (*ServiceManager, error) {
	// 获取可执行文件路径
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("获取可执行文件路径失败: %w", err)
	}

	arguments := []string{"run"}
	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("解析配置文件路径失败: %w", err)
		}
		arguments = append(arguments, "--config", absPath)
	}

	svcConfig := &service.Config{
		Name:        "selfmon",
		DisplayName: "selfmon",
		Description: "selfmon - 轮询 Monit 探针状态并在离线时告警",
		Arguments:   arguments,
		Executable:  execPath,
		Option: service.KeyValue{
			// Linux systemd 配置
			"Restart":            "always",
			"RestartSec":         "10",
			"StartLimitInterval": "0",

			// Windows 配置
			"OnFailure":    "restart",
			"ResetPeriod":  86400,
			"RestartDelay": 10000,

			// launchd
			"KeepAlive": true,
			"RunAtLoad": true,
		},
	}

	prg := &program{
		cfg:    cfg,
		logger: logger,
	}

	s, err := service.New(prg, svcConfig)
	if err != nil {
		return nil, fmt.Errorf("创建服务失败: %w", err)
	}

	return &ServiceManager{service: s}, nil
}

// Install 安装服务
func (m *ServiceManager) Install() error {
	return m.service.Install()
}

// Uninstall 卸载服务
func (m *ServiceManager) Uninstall() error {
	// 先停止服务
	_ = m.service.Stop()

	return m.service.Uninstall()
}

// Start 启动服务
func (m *ServiceManager) Start() error {
	return m.service.Start()
}

// Stop 停止服务
func (m *ServiceManager) Stop() error {
	return m.service.Stop()
}

// Restart 重启服务
func (m *ServiceManager) Restart() error {
	return m.service.Restart()
}

// Status 查看服务状态
func (m *ServiceManager) Status() (string, error) {
	status, err := m.service.Status()
	if err != nil {
		return "", err
	}
	return StatusText(status), nil
}

// StatusText 服务状态描述
func StatusText(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "运行中 (Running)"
	case service.StatusStopped:
		return "已停止 (Stopped)"
	case service.StatusUnknown:
		return "未知 (Unknown)"
	default:
		return fmt.Sprintf("状态: %d", status)
	}
}

// Run 在服务管理器控制下运行；交互模式由调用方直接运行 server.Run
func (m *ServiceManager) Run() error {
	return m.service.Run()
}

// Interactive 是否在终端中运行
func Interactive() bool {
	return service.Interactive()
}
