package collector

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/dushixiang/selfmon/internal/metric"
	"github.com/dushixiang/selfmon/internal/protocol"
	"golang.org/x/net/html/charset"
)

// ErrParse 状态文档不合法或缺少必填字段
var ErrParse = errors.New("monit status parse error")

// ParseStatus 解析 Monit XML 状态文档（Monit 默认以 ISO-8859-1 编码输出）
func ParseStatus(r io.Reader) (*protocol.MonitStatus, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charset.NewReaderLabel

	var status protocol.MonitStatus
	if err := decoder.Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return &status, nil
}

// ExtractUsage 从状态文档中计算 CPU 总使用率与内存使用率
//
// user/system 为必填节点，guest 可缺省；节点存在但数值无法解析时按 0 处理。
// memory/percent 缺失或无法解析都视为解析失败。
func ExtractUsage(status *protocol.MonitStatus) (cpuTotal float64, memoryPercent float64, err error) {
	svc := status.SystemService()
	if svc == nil {
		return 0, 0, fmt.Errorf("%w: missing service/system", ErrParse)
	}
	sys := svc.System

	if sys.CPU == nil {
		return 0, 0, fmt.Errorf("%w: missing system/cpu", ErrParse)
	}
	if sys.CPU.User == nil {
		return 0, 0, fmt.Errorf("%w: missing system/cpu/user", ErrParse)
	}
	if sys.CPU.System == nil {
		return 0, 0, fmt.Errorf("%w: missing system/cpu/system", ErrParse)
	}

	if sys.Memory == nil || sys.Memory.Percent == nil {
		return 0, 0, fmt.Errorf("%w: missing system/memory/percent", ErrParse)
	}
	memoryPercent, ok := parseNumber(*sys.Memory.Percent)
	if !ok {
		return 0, 0, fmt.Errorf("%w: invalid system/memory/percent %q", ErrParse, *sys.Memory.Percent)
	}

	user := numberOrZero(sys.CPU.User)
	system := numberOrZero(sys.CPU.System)
	guest := numberOrZero(sys.CPU.Guest)

	return metric.Round2(user + guest + system), memoryPercent, nil
}

func numberOrZero(s *string) float64 {
	if s == nil {
		return 0
	}
	v, ok := parseNumber(*s)
	if !ok {
		return 0
	}
	return v
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
