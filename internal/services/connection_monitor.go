package services

import (
	"context"
	"sync"
	"time"

	"github.com/shc-library/kiosk-agent/internal/models"
	"github.com/shc-library/kiosk-agent/pkg/logger"
	"github.com/shc-library/kiosk-agent/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultConnectionCheckInterval is the polling cadence when none is configured
	DefaultConnectionCheckInterval = 30 * time.Second

	// DisconnectedMessage is the banner error after a failed check
	DisconnectedMessage = "Backend disconnected"

	triggerStartup  = "startup"
	triggerInterval = "interval"
	triggerManual   = "manual"
)

// ConnectionMonitor polls the library API health check and keeps the
// process-wide ConnectionStatus.
type ConnectionMonitor struct {
	tester   ConnectionTester
	interval time.Duration
	now      func() time.Time

	group singleflight.Group

	mu     sync.RWMutex
	status models.ConnectionStatus

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConnectionMonitor creates a stopped monitor. A non-positive interval
// falls back to DefaultConnectionCheckInterval.
func NewConnectionMonitor(tester ConnectionTester, interval time.Duration) *ConnectionMonitor {
	if interval <= 0 {
		interval = DefaultConnectionCheckInterval
	}
	return &ConnectionMonitor{
		tester:   tester,
		interval: interval,
		now:      time.Now,
		status:   models.ConnectionStatus{IsChecking: true},
	}
}

// Start runs one check immediately and then one per interval until Stop is
// called or ctx is done. Starting a running monitor is a no-op.
func (m *ConnectionMonitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(ctx, m.done)

	logger.Info("Connection monitor started", zap.Duration("interval", m.interval))
}

// Stop cancels the ticker and waits for an in-progress check to return
func (m *ConnectionMonitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil

	logger.Info("Connection monitor stopped")
}

func (m *ConnectionMonitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.check(ctx, triggerStartup)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx, triggerInterval)
		}
	}
}

// CheckConnection forces a check outside the interval. Concurrent callers
// share one in-flight health request.
func (m *ConnectionMonitor) CheckConnection(ctx context.Context) models.ConnectionStatus {
	return m.check(ctx, triggerManual)
}

// Status returns the last known connection status
func (m *ConnectionMonitor) Status() models.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *ConnectionMonitor) check(ctx context.Context, trigger string) models.ConnectionStatus {
	v, _, _ := m.group.Do("health", func() (any, error) {
		m.mu.Lock()
		m.status.IsChecking = true
		m.mu.Unlock()

		connected := m.tester.TestConnection(ctx)
		checkedAt := m.now()

		m.mu.Lock()
		if ctx.Err() != nil {
			// Abandoned check: keep the previous result.
			m.status.IsChecking = false
			status := m.status
			m.mu.Unlock()
			return status, nil
		}
		wasConnected := m.status.IsConnected
		hadResult := m.status.LastChecked != nil
		m.status = models.ConnectionStatus{
			IsConnected: connected,
			IsChecking:  false,
			LastChecked: &checkedAt,
		}
		if !connected {
			m.status.Error = DisconnectedMessage
		}
		status := m.status
		m.mu.Unlock()

		m.record(connected, trigger, hadResult && wasConnected == connected)
		return status, nil
	})
	return v.(models.ConnectionStatus)
}

func (m *ConnectionMonitor) record(connected bool, trigger string, unchanged bool) {
	result := "disconnected"
	if connected {
		result = "connected"
		metrics.BackendConnected.Set(1)
	} else {
		metrics.BackendConnected.Set(0)
	}
	metrics.ConnectionChecks.WithLabelValues(result, trigger).Inc()

	if unchanged {
		logger.Debug("Connection check", zap.String("result", result), zap.String("trigger", trigger))
		return
	}
	if connected {
		logger.Info("Library API reachable", zap.String("trigger", trigger))
	} else {
		logger.Warn("Library API unreachable", zap.String("trigger", trigger))
	}
}
