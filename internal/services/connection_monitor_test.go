package services_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shc-library/kiosk-agent/internal/libraryapi"
	"github.com/shc-library/kiosk-agent/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionMonitor_InitialStatus(t *testing.T) {
	m := services.NewConnectionMonitor(&fakeTester{}, 0)

	status := m.Status()
	assert.True(t, status.IsChecking)
	assert.False(t, status.IsConnected)
	assert.Nil(t, status.LastChecked)
	assert.Equal(t, "Checking connection...", status.BannerText())
}

func TestConnectionMonitor_CheckConnection(t *testing.T) {
	tester := &fakeTester{}
	tester.connected.Store(true)
	m := services.NewConnectionMonitor(tester, time.Hour)

	before := time.Now()
	status := m.CheckConnection(context.Background())
	assert.True(t, status.IsConnected)
	assert.False(t, status.IsChecking)
	assert.Empty(t, status.Error)
	require.NotNil(t, status.LastChecked)
	assert.False(t, status.LastChecked.Before(before))
	assert.Equal(t, "Connected to backend", status.BannerText())

	tester.connected.Store(false)
	status = m.CheckConnection(context.Background())
	assert.False(t, status.IsConnected)
	assert.Equal(t, services.DisconnectedMessage, status.Error)
	assert.Equal(t, status, m.Status())
}

func TestConnectionMonitor_StartChecksImmediatelyAndOnInterval(t *testing.T) {
	tester := &fakeTester{}
	tester.connected.Store(true)
	m := services.NewConnectionMonitor(tester, 20*time.Millisecond)

	m.Start(context.Background())
	defer m.Stop()

	assert.Eventually(t, func() bool {
		return m.Status().LastChecked != nil
	}, time.Second, 5*time.Millisecond)
	assert.True(t, m.Status().IsConnected)

	assert.Eventually(t, func() bool {
		return tester.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestConnectionMonitor_StopCancelsTicker(t *testing.T) {
	tester := &fakeTester{}
	m := services.NewConnectionMonitor(tester, 10*time.Millisecond)

	m.Start(context.Background())
	// Starting twice does not add a second ticker
	m.Start(context.Background())

	assert.Eventually(t, func() bool {
		return tester.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	calls := tester.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, tester.calls.Load())

	// Stop is idempotent
	m.Stop()
}

func TestConnectionMonitor_StopWaitsForBlockedCheck(t *testing.T) {
	tester := &fakeTester{block: make(chan struct{})}
	m := services.NewConnectionMonitor(tester, time.Hour)

	m.Start(context.Background())
	assert.Eventually(t, func() bool {
		return tester.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	// The abandoned check does not overwrite the status
	status := m.Status()
	assert.False(t, status.IsChecking)
	assert.Nil(t, status.LastChecked)
}

func TestConnectionMonitor_ConcurrentChecksShareOneRequest(t *testing.T) {
	tester := &fakeTester{block: make(chan struct{})}
	tester.connected.Store(true)
	m := services.NewConnectionMonitor(tester, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.CheckConnection(context.Background())
		}()
	}

	assert.Eventually(t, func() bool {
		return m.Status().IsChecking && tester.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(tester.block)
	wg.Wait()

	assert.LessOrEqual(t, tester.calls.Load(), int32(5))
	assert.True(t, m.Status().IsConnected)
}

func TestConnectionMonitor_WithLibraryClient(t *testing.T) {
	var mu sync.Mutex
	body := `{"status":"ok"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client, err := libraryapi.NewClient(srv.URL, nil, time.Second)
	require.NoError(t, err)
	m := services.NewConnectionMonitor(client, time.Hour)

	assert.True(t, m.CheckConnection(context.Background()).IsConnected)

	mu.Lock()
	body = `{"success":false}`
	mu.Unlock()
	status := m.CheckConnection(context.Background())
	assert.False(t, status.IsConnected)
	assert.Equal(t, "Backend disconnected", status.BannerText())
}
