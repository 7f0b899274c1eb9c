package service

import (
	"time"

	"github.com/dushixiang/selfmon/internal/collector"
	"github.com/dushixiang/selfmon/internal/models"
)

// Decision 状态判定结果
type Decision struct {
	PersistStatus string // 本轮写入的状态
	ShouldAlert   bool   // 是否发送离线告警
	Suppressed    bool   // 本应告警但被静默策略屏蔽
}

// StateTracker 根据采集结果与上一条持久化采样判断是否发生离线跳变。
// 不持有任何跨周期状态，上一条采样总是由调用方从存储中查询。
type StateTracker struct {
	policy AlertPolicy
}

func NewStateTracker(policy AlertPolicy) *StateTracker {
	if policy == nil {
		policy = NeverSuppress
	}
	return &StateTracker{policy: policy}
}

// Evaluate 判定本轮状态
//
// 成功总是 online 且不告警（不发送恢复通知）；
// 失败为 offline，仅当上一条采样不存在或不是 offline 时告警。
func (t *StateTracker) Evaluate(agent models.Agent, outcome collector.Outcome, last *models.Sample, now time.Time) Decision {
	if _, ok := outcome.(*collector.Success); ok {
		return Decision{PersistStatus: models.StatusOnline}
	}

	decision := Decision{PersistStatus: models.StatusOffline}
	transition := last == nil || last.Status != models.StatusOffline
	if !transition {
		return decision
	}
	if t.policy.IsAlertSuppressed(agent.Name, now) {
		decision.Suppressed = true
		return decision
	}
	decision.ShouldAlert = true
	return decision
}

// BuildSample 根据采集结果构造本轮采样，失败时使用率为 0
func BuildSample(agentName string, outcome collector.Outcome, decision Decision, now time.Time) *models.Sample {
	if success, ok := outcome.(*collector.Success); ok && decision.PersistStatus == models.StatusOnline {
		return &models.Sample{
			AgentName:   agentName,
			Status:      models.StatusOnline,
			CPUUsage:    success.CPUTotal,
			MemoryUsage: success.MemoryPercent,
			Timestamp:   now.UnixMilli(),
		}
	}
	return models.NewOfflineSample(agentName, now.UnixMilli())
}
