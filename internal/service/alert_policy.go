package service

import (
	"fmt"
	"time"

	"github.com/dushixiang/selfmon/internal/config"
)

// AlertPolicy 判断某个探针在当前时间是否屏蔽告警
type AlertPolicy interface {
	IsAlertSuppressed(agentName string, now time.Time) bool
}

// AlertPolicyFunc 函数适配器
type AlertPolicyFunc func(agentName string, now time.Time) bool

func (f AlertPolicyFunc) IsAlertSuppressed(agentName string, now time.Time) bool {
	return f(agentName, now)
}

// NeverSuppress 从不屏蔽
var NeverSuppress = AlertPolicyFunc(func(string, time.Time) bool { return false })

// QuietHoursPolicy 静默时段策略：指定探针在 [start, end) 时段内不告警。
// start > end 表示跨零点（如 22:00-06:00），start == end 表示全天。
type QuietHoursPolicy struct {
	start    int // 自零点起的分钟数
	end      int
	location *time.Location
	agents   map[string]struct{}
}

// NewQuietHoursPolicy 根据配置创建静默策略，未配置时段或探针时返回 nil
func NewQuietHoursPolicy(cfg config.QuietHoursConfig) (*QuietHoursPolicy, error) {
	if cfg.Start == "" || len(cfg.Agents) == 0 {
		return nil, nil
	}

	start, err := parseClock(cfg.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseClock(cfg.End)
	if err != nil {
		return nil, err
	}

	location := time.Local
	if cfg.Timezone != "" {
		location, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("加载时区失败: %w", err)
		}
	}

	agents := make(map[string]struct{}, len(cfg.Agents))
	for _, name := range cfg.Agents {
		agents[name] = struct{}{}
	}

	return &QuietHoursPolicy{
		start:    start,
		end:      end,
		location: location,
		agents:   agents,
	}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("时间格式错误 %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsAlertSuppressed 实现 AlertPolicy
func (p *QuietHoursPolicy) IsAlertSuppressed(agentName string, now time.Time) bool {
	if p == nil {
		return false
	}
	if _, ok := p.agents[agentName]; !ok {
		return false
	}

	local := now.In(p.location)
	minute := local.Hour()*60 + local.Minute()

	switch {
	case p.start == p.end:
		return true
	case p.start < p.end:
		return minute >= p.start && minute < p.end
	default:
		return minute >= p.start || minute < p.end
	}
}
