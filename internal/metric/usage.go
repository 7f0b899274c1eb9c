package metric

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	LevelNormal   = "normal"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Round2 四舍五入保留两位小数
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatUsage 格式化使用率，固定两位小数，如 15.50
func FormatUsage(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// UsageLevel 使用率等级：>90 critical，>75 warning
func UsageLevel(v float64) string {
	switch {
	case v > 90:
		return LevelCritical
	case v > 75:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// FormatUptime 将秒数格式化为 1d 2h 3m 4s，零值的单位省略
func FormatUptime(seconds int64) string {
	if seconds <= 0 {
		return ""
	}
	days := seconds / 86400
	hours := seconds % 86400 / 3600
	minutes := seconds % 3600 / 60
	secs := seconds % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if secs > 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	return strings.Join(parts, " ")
}
