package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dushixiang/selfmon/internal/collector"
	"github.com/dushixiang/selfmon/internal/models"
	"github.com/dushixiang/selfmon/internal/protocol"
	"github.com/dushixiang/selfmon/internal/repo"
	"github.com/stretchr/testify/require"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedCollector 按探针名称返回预设结果，脚本用完后重复最后一个
type scriptedCollector struct {
	mu      sync.Mutex
	scripts map[string][]collector.Outcome
	calls   map[string]int
}

func newScriptedCollector() *scriptedCollector {
	return &scriptedCollector{
		scripts: make(map[string][]collector.Outcome),
		calls:   make(map[string]int),
	}
}

func (c *scriptedCollector) script(name string, outcomes ...collector.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = outcomes
}

func (c *scriptedCollector) Collect(ctx context.Context, agent models.Agent) collector.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	outcomes := c.scripts[agent.Name]
	if len(outcomes) == 0 {
		return &collector.Failure{Kind: collector.FailureTransport, Reason: "no script"}
	}
	i := c.calls[agent.Name]
	c.calls[agent.Name]++
	if i >= len(outcomes) {
		i = len(outcomes) - 1
	}
	return outcomes[i]
}

// recordingDispatcher 记录收到的告警
type recordingDispatcher struct {
	mu     sync.Mutex
	events []AlertEvent
	err    error
}

func (d *recordingDispatcher) Notify(ctx context.Context, event AlertEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return d.err
}

func (d *recordingDispatcher) Events() []AlertEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]AlertEvent(nil), d.events...)
}

func online(cpu, memory float64) collector.Outcome {
	return &collector.Success{
		CPUTotal:      cpu,
		MemoryPercent: memory,
		Status: &protocol.MonitStatus{
			Server: &protocol.MonitServer{Uptime: 3723, LocalHostname: "host-1", Version: "5.33.0"},
		},
	}
}

func offline(reason string) collector.Outcome {
	return &collector.Failure{Kind: collector.FailureTimeout, Reason: reason}
}

func newTestStore(t *testing.T) repo.SampleStore {
	t.Helper()
	store, err := repo.NewBoltSampleRepo(filepath.Join(t.TempDir(), "samples.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
