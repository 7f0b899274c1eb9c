package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dushixiang/selfmon/internal/models"
)

// ErrInvalidSample 采样缺少探针名称或状态非法
var ErrInvalidSample = errors.New("invalid sample")

// SampleStore 采样时序存储：只追加、按时间窗口查询、按时间清理
type SampleStore interface {
	// Append 追加一条采样，Timestamp 为 0 时使用当前时间
	Append(ctx context.Context, sample *models.Sample) error
	// QueryWindow 查询 since 之后（含）的采样，按时间升序
	QueryWindow(ctx context.Context, agentName string, since time.Time) ([]models.Sample, error)
	// GetLatest 最近一条采样，没有记录时返回 nil, nil
	GetLatest(ctx context.Context, agentName string) (*models.Sample, error)
	// DeleteOlderThan 删除早于 cutoff 的采样（不含 cutoff），返回删除条数
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

func validateSample(sample *models.Sample) error {
	if sample == nil {
		return fmt.Errorf("%w: nil", ErrInvalidSample)
	}
	if sample.AgentName == "" {
		return fmt.Errorf("%w: empty agent name", ErrInvalidSample)
	}
	if sample.Status != models.StatusOnline && sample.Status != models.StatusOffline {
		return fmt.Errorf("%w: status %q", ErrInvalidSample, sample.Status)
	}
	return nil
}
