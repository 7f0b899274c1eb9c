package service

import (
	"context"
	"sync"
	"time"

	"github.com/dushixiang/selfmon/internal/models"
	"github.com/go-errors/errors"
	"go.uber.org/zap"
)

const notifyTimeout = 30 * time.Second

// AlertService 告警服务：把离线跳变交给发送渠道，不等待发送结果
type AlertService struct {
	enabled    bool
	dispatcher Dispatcher
	logger     *zap.Logger
	inflight   sync.WaitGroup
}

func NewAlertService(logger *zap.Logger, enabled bool, dispatcher Dispatcher) *AlertService {
	return &AlertService{
		enabled:    enabled,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// FireOffline 触发离线告警，返回告警是否已交给发送渠道
func (s *AlertService) FireOffline(agent models.Agent, reason string, firedAt time.Time) bool {
	if !s.enabled || s.dispatcher == nil {
		s.logger.Info("告警未启用，跳过离线告警", zap.String("agent", agent.Name))
		return false
	}

	s.logger.Info("探针离线，发送告警",
		zap.String("agent", agent.Name),
		zap.String("reason", reason))

	event := AlertEvent{
		AgentName: agent.Name,
		Address:   agent.Address,
		Event:     EventOffline,
		Reason:    reason,
		FiredAt:   firedAt,
	}

	s.inflight.Add(1)
	// 使用新的 context，避免采集周期结束后取消发送
	go s.sendAlertNotification(event)
	return true
}

// sendAlertNotification 发送告警通知(带panic恢复)
func (s *AlertService) sendAlertNotification(event AlertEvent) {
	defer s.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("发送告警通知时发生panic",
				zap.String("agent", event.AgentName),
				zap.Any("panic", r),
				zap.String("stack", errors.Wrap(r, 2).ErrorStack()))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := s.dispatcher.Notify(ctx, event); err != nil {
		s.logger.Error("发送告警通知失败",
			zap.String("agent", event.AgentName),
			zap.Error(err))
	}
}

// Wait 等待所有发送中的告警结束
func (s *AlertService) Wait() {
	s.inflight.Wait()
}
