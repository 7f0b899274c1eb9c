package collector

import (
	"time"

	"github.com/dushixiang/selfmon/internal/protocol"
)

// FailureKind 采集失败分类
type FailureKind string

const (
	FailureTimeout    FailureKind = "timeout"
	FailureTransport  FailureKind = "transport"
	FailureHTTPStatus FailureKind = "http_status"
	FailureParse      FailureKind = "parse"
	FailurePanic      FailureKind = "panic"
)

// Outcome 单个探针单次采集的结果，只能是 *Success 或 *Failure
type Outcome interface {
	isOutcome()
}

// Success 采集成功
type Success struct {
	CPUTotal      float64               // user+system+guest，保留两位小数
	MemoryPercent float64               // 内存使用率
	Status        *protocol.MonitStatus // 原始状态文档
	Elapsed       time.Duration
}

// Failure 采集失败
type Failure struct {
	Kind   FailureKind
	Reason string
	Err    error
}

func (*Success) isOutcome() {}
func (*Failure) isOutcome() {}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Reason
}

func (f *Failure) Unwrap() error {
	return f.Err
}
