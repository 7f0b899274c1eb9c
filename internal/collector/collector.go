package collector

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dushixiang/selfmon/internal/models"
	"go.uber.org/zap"
)

const (
	defaultTimeout    = time.Second
	defaultStatusPath = "/_status"
	maxStatusBody     = 1 << 20
)

// Options 采集器配置
type Options struct {
	Timeout    time.Duration // 单次请求超时
	StatusPath string        // 状态接口路径，默认 /_status
}

// AgentCollector Monit 探针采集器：只负责请求、解析与分类，不写存储
type AgentCollector struct {
	httpClient *http.Client
	timeout    time.Duration
	statusPath string
	logger     *zap.Logger
}

// NewAgentCollector 创建采集器
func NewAgentCollector(logger *zap.Logger, opts Options) *AgentCollector {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	statusPath := opts.StatusPath
	if statusPath == "" {
		statusPath = defaultStatusPath
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // Monit 常用自签名证书
			},
			DisableKeepAlives: true,
		},
	}

	return &AgentCollector{
		httpClient: httpClient,
		timeout:    timeout,
		statusPath: statusPath,
		logger:     logger,
	}
}

// Collect 采集单个探针，每次调用恰好返回一个结果
func (c *AgentCollector) Collect(ctx context.Context, agent models.Agent) Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL(agent), nil)
	if err != nil {
		return &Failure{Kind: FailureTransport, Reason: fmt.Sprintf("create request failed: %v", err), Err: err}
	}
	if agent.Username != "" {
		req.SetBasicAuth(agent.Username, agent.Password)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyRequestError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Failure{
			Kind:   FailureHTTPStatus,
			Reason: fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	status, err := ParseStatus(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil {
		if isTimeout(err) {
			return &Failure{Kind: FailureTimeout, Reason: fmt.Sprintf("read body timeout: %v", err), Err: err}
		}
		return &Failure{Kind: FailureParse, Reason: err.Error(), Err: err}
	}

	cpuTotal, memoryPercent, err := ExtractUsage(status)
	if err != nil {
		return &Failure{Kind: FailureParse, Reason: err.Error(), Err: err}
	}

	elapsed := time.Since(startTime)
	c.logger.Debug("采集探针成功",
		zap.String("agent", agent.Name),
		zap.Float64("cpu", cpuTotal),
		zap.Float64("memory", memoryPercent),
		zap.Duration("elapsed", elapsed))

	return &Success{
		CPUTotal:      cpuTotal,
		MemoryPercent: memoryPercent,
		Status:        status,
		Elapsed:       elapsed,
	}
}

// statusURL 构造状态接口地址，address 未带 scheme 时默认 http
func (c *AgentCollector) statusURL(agent models.Agent) string {
	base := agent.Address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + c.statusPath + "?format=xml"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + c.statusPath
	u.RawQuery = "format=xml"
	return u.String()
}

func classifyRequestError(err error) *Failure {
	if isTimeout(err) {
		return &Failure{Kind: FailureTimeout, Reason: fmt.Sprintf("request timeout: %v", err), Err: err}
	}
	return &Failure{Kind: FailureTransport, Reason: fmt.Sprintf("request failed: %v", err), Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
