package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dushixiang/selfmon/internal/config"
	"github.com/jpillora/backoff"
	"github.com/valyala/fasttemplate"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

const EventOffline = "offline"

// AlertEvent 告警事件（不持久化）
type AlertEvent struct {
	AgentName string
	Address   string
	Event     string // offline
	Reason    string
	FiredAt   time.Time
}

// Dispatcher 告警发送渠道，重试策略由渠道自行负责
type Dispatcher interface {
	Notify(ctx context.Context, event AlertEvent) error
}

// Notifier 向所有渠道发送告警，单个渠道失败不影响其它渠道
type Notifier struct {
	logger   *zap.Logger
	channels []Dispatcher
}

func NewNotifier(logger *zap.Logger, channels ...Dispatcher) *Notifier {
	return &Notifier{
		logger:   logger,
		channels: channels,
	}
}

// Notify 实现 Dispatcher
func (n *Notifier) Notify(ctx context.Context, event AlertEvent) error {
	var errs []error
	for _, channel := range n.channels {
		if err := channel.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogDispatcher 只写日志的渠道
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Notify(ctx context.Context, event AlertEvent) error {
	d.logger.Warn("探针告警",
		zap.String("agent", event.AgentName),
		zap.String("address", event.Address),
		zap.String("event", event.Event),
		zap.String("reason", event.Reason),
		zap.Time("firedAt", event.FiredAt))
	return nil
}

// MailDispatcher 邮件告警渠道
type MailDispatcher struct {
	logger     *zap.Logger
	cfg        config.MailConfig
	subjectTpl *fasttemplate.Template
	bodyTpl    *fasttemplate.Template
	send       func(m *gomail.Message) error
}

// NewMailDispatcher 创建邮件渠道，subject/body 支持 {agent} {event} {address} {reason} {time} 占位符
func NewMailDispatcher(logger *zap.Logger, cfg config.MailConfig) (*MailDispatcher, error) {
	subjectTpl, err := fasttemplate.NewTemplate(cfg.Subject, "{", "}")
	if err != nil {
		return nil, fmt.Errorf("解析邮件标题模板失败: %w", err)
	}
	bodyTpl, err := fasttemplate.NewTemplate(cfg.Body, "{", "}")
	if err != nil {
		return nil, fmt.Errorf("解析邮件正文模板失败: %w", err)
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)

	return &MailDispatcher{
		logger:     logger,
		cfg:        cfg,
		subjectTpl: subjectTpl,
		bodyTpl:    bodyTpl,
		send: func(m *gomail.Message) error {
			return dialer.DialAndSend(m)
		},
	}, nil
}

// Render 渲染邮件标题与正文
func (d *MailDispatcher) Render(event AlertEvent) (subject, body string) {
	values := map[string]interface{}{
		"agent":   event.AgentName,
		"event":   event.Event,
		"address": event.Address,
		"reason":  event.Reason,
		"time":    event.FiredAt.Format("2006-01-02 15:04:05"),
	}
	return d.subjectTpl.ExecuteString(values), d.bodyTpl.ExecuteString(values)
}

// Notify 发送邮件，失败时按指数退避重试 MaxRetries 次
func (d *MailDispatcher) Notify(ctx context.Context, event AlertEvent) error {
	subject, body := d.Render(event)

	m := gomail.NewMessage()
	m.SetHeader("From", d.cfg.From)
	m.SetHeader("To", d.cfg.To...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	b := &backoff.Backoff{
		Min:    d.cfg.RetryMin,
		Max:    d.cfg.RetryMax,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 0; ; attempt++ {
		err := d.send(m)
		if err == nil {
			d.logger.Info("告警邮件已发送",
				zap.String("agent", event.AgentName),
				zap.Strings("to", d.cfg.To))
			return nil
		}
		if attempt >= d.cfg.MaxRetries {
			return fmt.Errorf("发送告警邮件失败(重试%d次): %w", attempt, err)
		}

		wait := b.Duration()
		d.logger.Warn("发送告警邮件失败，稍后重试",
			zap.String("agent", event.AgentName),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
