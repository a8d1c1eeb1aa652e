// Package netmon tracks network reachability with a pluggable probe and
// fans state transitions out to subscribers.
package netmon

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is how often the probe runs between explicit checks.
const DefaultInterval = 30 * time.Second

// Probe reports whether the network is reachable right now.
type Probe func(ctx context.Context) bool

// StatusStore persists the last observed state so other components can read
// it after a restart, before the first probe completes.
type StatusStore interface {
	SetStatus(ctx context.Context, key, value string) error
	GetStatus(ctx context.Context, key string) (string, error)
}

// Config tunes the monitor. Probe is required; zero Interval takes
// DefaultInterval; Store is optional.
type Config struct {
	Probe     Probe
	Interval  time.Duration
	Store     StatusStore
	StatusKey string
}

// Monitor polls a probe and exposes the current online state. Transitions
// are delivered to subscribers; repeated identical observations are not.
type Monitor struct {
	probe    Probe
	interval time.Duration
	store    StatusStore
	key      string

	online atomic.Bool

	mu   sync.Mutex
	subs []chan bool

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New builds a monitor. It does not start polling; call Start.
func New(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StatusKey == "" {
		cfg.StatusKey = "online"
	}
	return &Monitor{
		probe:    cfg.Probe,
		interval: cfg.Interval,
		store:    cfg.Store,
		key:      cfg.StatusKey,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Online returns the last observed state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Check runs the probe once, updates the state, and returns the result.
func (m *Monitor) Check(ctx context.Context) bool {
	now := m.probe(ctx)
	m.set(ctx, now)
	return now
}

// Subscribe returns a channel receiving each state transition. The channel
// is buffered; a slow subscriber drops intermediate transitions rather than
// blocking the monitor.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Start begins periodic probing until Stop or ctx cancellation. An initial
// probe runs immediately. A second Start is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(m.done)
		m.Check(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Check(ctx)
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends periodic probing and waits for the poll loop to exit. Safe to
// call more than once, and a no-op when Start never ran.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	if m.started.Load() {
		<-m.done
	}
}

func (m *Monitor) set(ctx context.Context, now bool) {
	was := m.online.Swap(now)
	if was == now {
		return
	}

	slog.Info("connectivity changed", "online", now)
	if m.store != nil {
		val := "false"
		if now {
			val = "true"
		}
		if err := m.store.SetStatus(ctx, m.key, val); err != nil {
			slog.Warn("persist connectivity state failed", "error", err)
		}
	}

	m.mu.Lock()
	subs := append([]chan bool(nil), m.subs...)
	m.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- now:
		default:
			// Drop rather than block; subscribers can read Online().
		}
	}
}
