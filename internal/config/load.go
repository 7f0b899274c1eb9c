package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// ErrNoAgents 未配置任何探针
var ErrNoAgents = errors.New("no agents configured")

const envPrefix = "SELFMON"

// Load 从配置文件与环境变量加载配置。path 为空时只使用默认值与环境变量。
func Load(fs afero.Fs, path string) (*AppConfig, error) {
	return load(fs, path, os.LookupEnv)
}

func load(fs afero.Fs, path string, lookupEnv func(string) (string, bool)) (*AppConfig, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := applyLegacyEnv(cfg, lookupEnv); err != nil {
		return nil, err
	}

	cfg.normalize()

	if len(cfg.Agents) == 0 {
		return nil, ErrNoAgents
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, def *AppConfig) {
	v.SetDefault("server.addr", def.Server.Addr)

	v.SetDefault("database.driver", def.Database.Driver)
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("database.dsn", def.Database.DSN)

	v.SetDefault("collector.interval", def.Collector.Interval)
	v.SetDefault("collector.timeout", def.Collector.Timeout)
	v.SetDefault("collector.statusPath", def.Collector.StatusPath)
	v.SetDefault("collector.username", def.Collector.Username)
	v.SetDefault("collector.password", def.Collector.Password)

	v.SetDefault("retention.window", def.Retention.Window)
	v.SetDefault("retention.sweepInterval", def.Retention.SweepInterval)

	v.SetDefault("alert.enabled", def.Alert.Enabled)
	v.SetDefault("alert.quietHours.start", def.Alert.QuietHours.Start)
	v.SetDefault("alert.quietHours.end", def.Alert.QuietHours.End)
	v.SetDefault("alert.quietHours.timezone", def.Alert.QuietHours.Timezone)

	v.SetDefault("mail.enabled", def.Mail.Enabled)
	v.SetDefault("mail.host", def.Mail.Host)
	v.SetDefault("mail.port", def.Mail.Port)
	v.SetDefault("mail.username", def.Mail.Username)
	v.SetDefault("mail.password", def.Mail.Password)
	v.SetDefault("mail.from", def.Mail.From)
	v.SetDefault("mail.subject", def.Mail.Subject)
	v.SetDefault("mail.body", def.Mail.Body)
	v.SetDefault("mail.maxRetries", def.Mail.MaxRetries)
	v.SetDefault("mail.retryMin", def.Mail.RetryMin)
	v.SetDefault("mail.retryMax", def.Mail.RetryMax)

	v.SetDefault("chart.bucketSize", def.Chart.BucketSize)
	v.SetDefault("chart.divisor", def.Chart.Divisor)

	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("log.maxSize", def.Log.MaxSize)
	v.SetDefault("log.maxBackups", def.Log.MaxBackups)
	v.SetDefault("log.maxAge", def.Log.MaxAge)
	v.SetDefault("log.compress", def.Log.Compress)
}

// applyLegacyEnv 兼容旧版部署使用的环境变量：
// AGENTS（JSON 数组）、PORT、DB_PATH、EMAIL_USER、EMAIL_PASS、ALERT_EMAIL
func applyLegacyEnv(cfg *AppConfig, lookupEnv func(string) (string, bool)) error {
	if raw, ok := lookupEnv("AGENTS"); ok && strings.TrimSpace(raw) != "" {
		var agents []AgentConfig
		if err := json.Unmarshal([]byte(raw), &agents); err != nil {
			return fmt.Errorf("解析 AGENTS 环境变量失败: %w", err)
		}
		cfg.Agents = append(cfg.Agents, agents...)
	}
	if port, ok := lookupEnv("PORT"); ok && port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("PORT 环境变量不合法: %q", port)
		}
		cfg.Server.Addr = ":" + port
	}
	if dbPath, ok := lookupEnv("DB_PATH"); ok && dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if user, ok := lookupEnv("EMAIL_USER"); ok && user != "" {
		cfg.Mail.Enabled = true
		cfg.Mail.Username = user
		if cfg.Mail.From == "" {
			cfg.Mail.From = user
		}
	}
	if pass, ok := lookupEnv("EMAIL_PASS"); ok && pass != "" {
		cfg.Mail.Password = pass
	}
	if to, ok := lookupEnv("ALERT_EMAIL"); ok && to != "" {
		cfg.Mail.To = append(cfg.Mail.To, strings.Split(to, ",")...)
	}
	return nil
}

// normalize 补全探针地址与凭据
func (c *AppConfig) normalize() {
	for i := range c.Agents {
		agent := &c.Agents[i]
		agent.Name = strings.TrimSpace(agent.Name)
		if agent.Address == "" && agent.IP != "" {
			agent.Address = agent.HostPort()
		}
		if agent.Username == "" {
			agent.Username = c.Collector.Username
			agent.Password = c.Collector.Password
		}
	}
	for i := range c.Mail.To {
		c.Mail.To[i] = strings.TrimSpace(c.Mail.To[i])
	}
	if c.Mail.From == "" {
		c.Mail.From = c.Mail.Username
	}
}
