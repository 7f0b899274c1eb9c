package repo

import (
	"context"
	"time"

	"github.com/dushixiang/selfmon/internal/models"
	"gorm.io/gorm"
)

// SampleRepo 基于 gorm 的采样存储（sqlite / postgres）
type SampleRepo struct {
	db *gorm.DB
}

func NewSampleRepo(db *gorm.DB) *SampleRepo {
	return &SampleRepo{
		db: db,
	}
}

// Append 追加采样
func (r *SampleRepo) Append(ctx context.Context, sample *models.Sample) error {
	if err := validateSample(sample); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(sample).Error
}

// QueryWindow 按时间窗口查询
func (r *SampleRepo) QueryWindow(ctx context.Context, agentName string, since time.Time) ([]models.Sample, error) {
	var samples []models.Sample
	err := r.db.WithContext(ctx).
		Where("agent_name = ? AND timestamp >= ?", agentName, since.UnixMilli()).
		Order("timestamp ASC, id ASC").
		Find(&samples).Error
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// GetLatest 最后写入的一条采样（按自增主键，不受时钟回拨影响）
func (r *SampleRepo) GetLatest(ctx context.Context, agentName string) (*models.Sample, error) {
	// 使用 Find + Limit，没有记录时不产生 ErrRecordNotFound 日志
	var samples []models.Sample
	err := r.db.WithContext(ctx).
		Where("agent_name = ?", agentName).
		Order("id DESC").
		Limit(1).
		Find(&samples).Error
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	return &samples[0], nil
}

// DeleteOlderThan 删除指定时间之前的采样（用于数据清理）
func (r *SampleRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff.UnixMilli()).
		Delete(&models.Sample{})
	return result.RowsAffected, result.Error
}

// DB 底层连接
func (r *SampleRepo) DB() *gorm.DB {
	return r.db
}

func (r *SampleRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
