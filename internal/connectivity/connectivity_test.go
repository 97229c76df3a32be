package connectivity

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docsync/internal/config"
	"docsync/internal/events"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() config.ConnectivityConfig {
	return config.ConnectivityConfig{
		ProbeEnabled:  true,
		ProbeInterval: 5 * time.Millisecond,
		ProbeTimeout:  200 * time.Millisecond,
		Backoff: config.BackoffConfig{
			InitialDelay: 5 * time.Millisecond,
			MaxDelay:     20 * time.Millisecond,
			Factor:       2,
		},
	}
}

func TestMonitorStartsOnline(t *testing.T) {
	m := NewMonitor(nil, nil)
	assert.True(t, m.IsOnline())
}

func TestMonitorTransitions(t *testing.T) {
	bus := events.NewEventBus()
	var got []string
	var mu sync.Mutex
	bus.SubscribeAll(func(e *events.Event) error {
		var p events.ConnectivityPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
		return nil
	})

	m := NewMonitor(nil, bus)
	var fired atomic.Int32
	m.OnOnline(func() { fired.Add(1) })
	m.OnOnline(nil)

	m.SetOnline()
	assert.Zero(t, fired.Load(), "already online, no transition")

	m.SetOffline()
	m.SetOffline()
	assert.False(t, m.IsOnline())

	m.SetOnline()
	m.SetOnline()
	assert.True(t, m.IsOnline())
	assert.Equal(t, int32(1), fired.Load())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{events.EventConnectivityOffline, events.EventConnectivityOnline}, got)
}

func TestMonitorConcurrentOnlineFiresOnce(t *testing.T) {
	m := NewMonitor(nil, nil)
	var fired atomic.Int32
	m.OnOnline(func() { fired.Add(1) })
	m.SetOffline()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.SetOnline()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fired.Load())
}

func TestMonitorRunWithSourceFunc(t *testing.T) {
	m := NewMonitor(nil, nil)
	var fired atomic.Int32
	m.OnOnline(func() { fired.Add(1) })

	src := SourceFunc(func(ctx context.Context, report func(bool)) {
		report(false)
		report(false)
		report(true)
		report(true)
		report(false)
	})
	m.Run(context.Background(), src)

	assert.False(t, m.IsOnline())
	assert.Equal(t, int32(1), fired.Load())
}

func TestProbeSourceBacksOffAndRecovers(t *testing.T) {
	var calls atomic.Int32
	var down atomic.Bool
	down.Store(true)
	ping := func(ctx context.Context) error {
		calls.Add(1)
		if down.Load() {
			return errors.New("connection refused")
		}
		return nil
	}

	m := NewMonitor(nil, nil)
	var fired atomic.Int32
	m.OnOnline(func() { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, NewProbeSource(ping, fastConfig(), nil))
		close(done)
	}()

	require.Eventually(t, func() bool { return !m.IsOnline() && calls.Load() >= 2 }, time.Second, time.Millisecond)
	assert.Zero(t, fired.Load())

	down.Store(false)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	assert.True(t, m.IsOnline())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("probe did not stop after cancel")
	}
}

func TestProbeSourceDefaults(t *testing.T) {
	p := NewProbeSource(func(context.Context) error { return nil }, config.ConnectivityConfig{}, nil)
	assert.Equal(t, defaultProbeInterval, p.interval)
	assert.Equal(t, defaultProbeTimeout, p.timeout)
}

func TestRedisProbe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	m := NewMonitor(nil, nil)
	var fired atomic.Int32
	m.OnOnline(func() { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, NewProbeSource(RedisPing(client), fastConfig(), nil))

	mr.Close()
	require.Eventually(t, func() bool { return !m.IsOnline() }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, mr.Restart())
	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.IsOnline())
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connectivity.state")
	m := NewMonitor(nil, nil)
	var fired atomic.Int32
	m.OnOnline(func() { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, NewFileSource(path, nil))

	// Give the watcher time to register before the first write.
	time.Sleep(50 * time.Millisecond)
	assert.True(t, m.IsOnline(), "no state file means online")

	require.NoError(t, os.WriteFile(path, []byte("offline\n"), 0o644))
	require.Eventually(t, func() bool { return !m.IsOnline() }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("online"), 0o644))
	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("OFFLINE"), 0o644))
	require.Eventually(t, func() bool { return !m.IsOnline() }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, m.IsOnline, 2*time.Second, 5*time.Millisecond)
}
