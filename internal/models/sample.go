package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Sample 探针采样记录（只追加，保留期外由清理任务删除）
type Sample struct {
	ID          uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	AgentName   string  `gorm:"index:idx_sample_agent_ts,priority:1;not null" json:"name"`            // 探针名称
	Status      string  `gorm:"size:16;not null" json:"status"`                                       // online/offline
	CPUUsage    float64 `json:"cpu_usage"`                                                            // CPU 使用率(user+system+guest)
	MemoryUsage float64 `json:"memory_usage"`                                                         // 内存使用率
	Timestamp   int64   `gorm:"index:idx_sample_agent_ts,priority:2;index:idx_sample_ts" json:"time"` // 采集时间（毫秒时间戳）
}

func (Sample) TableName() string {
	return "samples"
}

// BeforeCreate GORM钩子：未指定采集时间时使用当前时间
func (s *Sample) BeforeCreate(tx *gorm.DB) error {
	if s.Timestamp == 0 {
		s.Timestamp = time.Now().UnixMilli()
	}
	return nil
}

// IsOnline 是否在线
func (s *Sample) IsOnline() bool {
	return s.Status == StatusOnline
}

// Time 采集时间
func (s *Sample) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// NewOfflineSample 构造离线采样，使用率固定为 0
func NewOfflineSample(agentName string, ts int64) *Sample {
	return &Sample{
		AgentName: agentName,
		Status:    StatusOffline,
		Timestamp: ts,
	}
}
