package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"docsync/internal/domain"
	"docsync/internal/events"
	"docsync/internal/metrics"

	"github.com/rs/zerolog"
)

// Source feeds connectivity observations into a Monitor. Run blocks until ctx
// is done.
type Source interface {
	Run(ctx context.Context, report func(online bool))
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context, report func(online bool))

func (f SourceFunc) Run(ctx context.Context, report func(online bool)) { f(ctx, report) }

// Monitor tracks whether the remote store is reachable. Without a source it
// stays online.
type Monitor struct {
	online atomic.Bool

	mu       sync.RWMutex
	onOnline []func()

	events domain.EventPublisher
	logger *zerolog.Logger
}

func NewMonitor(logger *zerolog.Logger, publisher domain.EventPublisher) *Monitor {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "connectivity").Logger()

	m := &Monitor{events: publisher, logger: &l}
	m.online.Store(true)
	metrics.SetOnline(true)
	return m
}

func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// OnOnline registers fn to run on every offline to online transition.
func (m *Monitor) OnOnline(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// SetOnline marks the monitor online. Handlers run only if the monitor was
// offline; repeated calls are no-ops.
func (m *Monitor) SetOnline() {
	if !m.online.CompareAndSwap(false, true) {
		return
	}
	metrics.SetOnline(true)
	m.logger.Info().Msg("connectivity restored")
	m.publish(events.EventConnectivityOnline, true)

	m.mu.RLock()
	handlers := append([]func(){}, m.onOnline...)
	m.mu.RUnlock()

	for _, fn := range handlers {
		fn()
	}
}

// SetOffline marks the monitor offline. In-flight work is not interrupted.
func (m *Monitor) SetOffline() {
	if !m.online.CompareAndSwap(true, false) {
		return
	}
	metrics.SetOnline(false)
	m.logger.Warn().Msg("connectivity lost")
	m.publish(events.EventConnectivityOffline, false)
}

// Run feeds the monitor from src until ctx is done.
func (m *Monitor) Run(ctx context.Context, src Source) {
	src.Run(ctx, func(online bool) {
		if online {
			m.SetOnline()
			return
		}
		m.SetOffline()
	})
}

func (m *Monitor) publish(eventType string, online bool) {
	if m.events == nil {
		return
	}
	payload := events.ConnectivityPayload{Online: online, At: time.Now()}
	if err := m.events.PublishJSON(eventType, payload); err != nil {
		m.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
