package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dushixiang/selfmon/internal/config"
	"github.com/dushixiang/selfmon/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/gomail.v2"
)

func newTestMailDispatcher(t *testing.T) *MailDispatcher {
	t.Helper()
	cfg := config.Default().Mail
	cfg.Enabled = true
	cfg.From = "selfmon@example.com"
	cfg.To = []string{"ops@example.com"}
	cfg.RetryMin = time.Millisecond
	cfg.RetryMax = 2 * time.Millisecond

	d, err := NewMailDispatcher(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	return d
}

func TestMailRender(t *testing.T) {
	d := newTestMailDispatcher(t)
	subject, body := d.Render(AlertEvent{
		AgentName: "web1",
		Event:     EventOffline,
		FiredAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	assert.Equal(t, "selfmon alert: web1 is offline", subject)
	assert.Equal(t, "The agent web1 is currently offline.", body)
}

func TestMailNotifyRetries(t *testing.T) {
	d := newTestMailDispatcher(t)

	attempts := 0
	var sent bytes.Buffer
	d.send = func(m *gomail.Message) error {
		attempts++
		if attempts < 3 {
			return errors.New("421 service not available")
		}
		_, err := m.WriteTo(&sent)
		return err
	}

	require.NoError(t, d.Notify(context.Background(), AlertEvent{AgentName: "web1", Event: EventOffline}))
	assert.Equal(t, 3, attempts)
	assert.Contains(t, sent.String(), "selfmon alert: web1 is offline")
	assert.Contains(t, sent.String(), "ops@example.com")
}

func TestMailNotifyGivesUp(t *testing.T) {
	d := newTestMailDispatcher(t)

	attempts := 0
	d.send = func(m *gomail.Message) error {
		attempts++
		return errors.New("535 authentication failed")
	}

	err := d.Notify(context.Background(), AlertEvent{AgentName: "web1", Event: EventOffline})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "535")
	assert.Equal(t, d.cfg.MaxRetries+1, attempts)
}

func TestMailNotifyCanceled(t *testing.T) {
	d := newTestMailDispatcher(t)
	d.cfg.RetryMin = time.Hour
	d.cfg.RetryMax = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	d.send = func(m *gomail.Message) error {
		cancel()
		return errors.New("timeout")
	}

	err := d.Notify(ctx, AlertEvent{AgentName: "web1", Event: EventOffline})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNotifierFanOut(t *testing.T) {
	failing := &recordingDispatcher{err: errors.New("smtp down")}
	ok := &recordingDispatcher{}
	n := NewNotifier(zaptest.NewLogger(t), failing, NewLogDispatcher(zaptest.NewLogger(t)), ok)

	err := n.Notify(context.Background(), AlertEvent{AgentName: "web1", Event: EventOffline})
	assert.ErrorContains(t, err, "smtp down")
	assert.Len(t, failing.Events(), 1)
	assert.Len(t, ok.Events(), 1)
}

func TestAlertServiceDisabled(t *testing.T) {
	d := &recordingDispatcher{}
	s := NewAlertService(zaptest.NewLogger(t), false, d)

	assert.False(t, s.FireOffline(models.Agent{Name: "web1"}, "timeout", time.Now()))
	s.Wait()
	assert.Empty(t, d.Events())
}

type panicDispatcher struct{}

func (panicDispatcher) Notify(ctx context.Context, event AlertEvent) error {
	panic("boom")
}

func TestAlertServiceRecoversPanic(t *testing.T) {
	s := NewAlertService(zaptest.NewLogger(t), true, panicDispatcher{})
	assert.NotPanics(t, func() {
		s.FireOffline(models.Agent{Name: "web1"}, "timeout", time.Now())
		s.Wait()
	})
}
