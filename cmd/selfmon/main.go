package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/dushixiang/selfmon/internal/config"
	"github.com/dushixiang/selfmon/internal/daemon"
	"github.com/dushixiang/selfmon/internal/logger"
	"github.com/dushixiang/selfmon/internal/server"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "selfmon",
		Short:         "轮询 Monit 探针状态，记录资源使用率并在离线时告警",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（为空时只使用默认值与环境变量）")

	root.AddCommand(newRunCmd(), newConfigCmd(), newServiceCmd())
	return root
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load(afero.NewOsFs(), configPath)
	if err != nil {
		if errors.Is(err, config.ErrNoAgents) {
			return nil, fmt.Errorf("未配置任何探针，请在配置文件的 agents 或环境变量 AGENTS 中设置: %w", err)
		}
		return nil, err
	}
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "前台运行",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log)
			defer log.Sync()

			if !daemon.Interactive() {
				mgr, err := daemon.NewServiceManager(cfg, configPath, log)
				if err != nil {
					return err
				}
				return mgr.Run()
			}

			log.Info("配置加载成功",
				zap.Int("agents", len(cfg.Agents)),
				zap.String("database", cfg.Database.Driver),
				zap.Duration("interval", cfg.Collector.Interval))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Run(ctx, cfg, log)
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "输出默认配置",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			cfg.Agents = []config.AgentConfig{
				{Name: "web1", Address: "127.0.0.1:2812", Username: "admin", Password: "monit"},
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

func newServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "系统服务管理",
	}

	actions := []struct {
		name  string
		short string
		run   func(m *daemon.ServiceManager) (string, error)
	}{
		{"install", "安装为系统服务", func(m *daemon.ServiceManager) (string, error) { return "服务安装成功", m.Install() }},
		{"uninstall", "卸载系统服务", func(m *daemon.ServiceManager) (string, error) { return "服务卸载成功", m.Uninstall() }},
		{"start", "启动服务", func(m *daemon.ServiceManager) (string, error) { return "服务已启动", m.Start() }},
		{"stop", "停止服务", func(m *daemon.ServiceManager) (string, error) { return "服务已停止", m.Stop() }},
		{"restart", "重启服务", func(m *daemon.ServiceManager) (string, error) { return "服务已重启", m.Restart() }},
		{"status", "查看服务状态", func(m *daemon.ServiceManager) (string, error) { return m.Status() }},
	}

	for _, action := range actions {
		cmd.AddCommand(&cobra.Command{
			Use:   action.name,
			Short: action.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				mgr, err := daemon.NewServiceManager(cfg, configPath, logger.New(cfg.Log))
				if err != nil {
					return err
				}
				msg, err := action.run(mgr)
				if err != nil {
					return fmt.Errorf("%s失败: %w", action.short, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			},
		})
	}
	return cmd
}
