package config

import (
	"net"
	"strconv"
	"time"
)

// AppConfig 应用配置
type AppConfig struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Collector CollectorConfig `mapstructure:"collector" yaml:"collector"`
	Retention RetentionConfig `mapstructure:"retention" yaml:"retention"`
	Alert     AlertConfig     `mapstructure:"alert" yaml:"alert"`
	Mail      MailConfig      `mapstructure:"mail" yaml:"mail"`
	Chart     ChartConfig     `mapstructure:"chart" yaml:"chart"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Agents    []AgentConfig   `mapstructure:"agents" yaml:"agents" validate:"required,min=1,unique=Name,dive"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required"` // 监听地址
}

// DatabaseConfig 存储配置
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=sqlite postgres bolt"`  // sqlite/postgres/bolt
	Path   string `mapstructure:"path" yaml:"path" validate:"required_unless=Driver postgres"` // sqlite/bolt 数据文件
	DSN    string `mapstructure:"dsn" yaml:"dsn" validate:"required_if=Driver postgres"`       // postgres 连接串
}

// CollectorConfig 采集配置
type CollectorConfig struct {
	Interval   time.Duration `mapstructure:"interval" yaml:"interval" validate:"gt=0"` // 采集周期
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`   // 单次请求超时
	StatusPath string        `mapstructure:"statusPath" yaml:"statusPath" validate:"startswith=/"`
	Username   string        `mapstructure:"username" yaml:"username"` // 探针未单独配置时使用的 Monit 账号
	Password   string        `mapstructure:"password" yaml:"password"`
}

// RetentionConfig 数据保留配置
type RetentionConfig struct {
	Window        time.Duration `mapstructure:"window" yaml:"window" validate:"gt=0"`               // 保留时长
	SweepInterval time.Duration `mapstructure:"sweepInterval" yaml:"sweepInterval" validate:"gt=0"` // 清理周期
}

// AlertConfig 告警配置
type AlertConfig struct {
	Enabled    bool             `mapstructure:"enabled" yaml:"enabled"`
	QuietHours QuietHoursConfig `mapstructure:"quietHours" yaml:"quietHours"`
}

// QuietHoursConfig 静默时段：Agents 中的探针在 [Start, End) 内不发送离线告警，End 小于 Start 表示跨零点
type QuietHoursConfig struct {
	Start    string   `mapstructure:"start" yaml:"start" validate:"omitempty,datetime=15:04"`
	End      string   `mapstructure:"end" yaml:"end" validate:"required_with=Start,omitempty,datetime=15:04"`
	Timezone string   `mapstructure:"timezone" yaml:"timezone" validate:"omitempty,timezone"` // 为空时使用本地时区
	Agents   []string `mapstructure:"agents" yaml:"agents"`
}

// MailConfig 邮件告警配置
type MailConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Host       string        `mapstructure:"host" yaml:"host" validate:"required_if=Enabled true"`
	Port       int           `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
	Username   string        `mapstructure:"username" yaml:"username"`
	Password   string        `mapstructure:"password" yaml:"password"`
	From       string        `mapstructure:"from" yaml:"from" validate:"omitempty,email"`
	To         []string      `mapstructure:"to" yaml:"to" validate:"required_if=Enabled true,dive,email"`
	Subject    string        `mapstructure:"subject" yaml:"subject"` // 支持 {agent} {event} {time}
	Body       string        `mapstructure:"body" yaml:"body"`
	MaxRetries int           `mapstructure:"maxRetries" yaml:"maxRetries" validate:"min=0"`
	RetryMin   time.Duration `mapstructure:"retryMin" yaml:"retryMin"`
	RetryMax   time.Duration `mapstructure:"retryMax" yaml:"retryMax"`
}

// ChartConfig 图表降采样配置
type ChartConfig struct {
	BucketSize int    `mapstructure:"bucketSize" yaml:"bucketSize" validate:"min=1"`
	Divisor    string `mapstructure:"divisor" yaml:"divisor" validate:"oneof=fixed count"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" yaml:"format" validate:"oneof=console json"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"maxSize" yaml:"maxSize"`       // MB
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"` // 保留的旧日志文件数
	MaxAge     int    `mapstructure:"maxAge" yaml:"maxAge"`         // 天数
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// AgentConfig 探针配置；Address 为空时由 IP 与 Port 拼接
type AgentConfig struct {
	Name     string `mapstructure:"name" yaml:"name" json:"name" validate:"required"`
	Address  string `mapstructure:"address" yaml:"address,omitempty" json:"address,omitempty" validate:"required_without=IP"`
	IP       string `mapstructure:"ip" yaml:"ip,omitempty" json:"ip,omitempty"`
	Port     int    `mapstructure:"port" yaml:"port,omitempty" json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Username string `mapstructure:"username" yaml:"username,omitempty" json:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty" json:"password,omitempty"`
}

// HostPort 探针地址
func (a AgentConfig) HostPort() string {
	if a.Address != "" {
		return a.Address
	}
	if a.Port == 0 {
		return a.IP
	}
	return net.JoinHostPort(a.IP, strconv.Itoa(a.Port))
}

// Default 默认配置
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr: ":3000",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "./database.db",
		},
		Collector: CollectorConfig{
			Interval:   60 * time.Second,
			Timeout:    time.Second,
			StatusPath: "/_status",
		},
		Retention: RetentionConfig{
			Window:        24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Alert: AlertConfig{
			Enabled: true,
		},
		Mail: MailConfig{
			Host:       "smtp.gmail.com",
			Port:       587,
			Subject:    "selfmon alert: {agent} is {event}",
			Body:       "The agent {agent} is currently {event}.",
			MaxRetries: 3,
			RetryMin:   2 * time.Second,
			RetryMax:   30 * time.Second,
		},
		Chart: ChartConfig{
			BucketSize: 10,
			Divisor:    "fixed",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}
