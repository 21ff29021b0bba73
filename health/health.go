// Package health tracks whether Kovi's persisted-state backend is
// reachable. The bot itself never auto-reconnects (a transport failure
// is fatal by design), but the store is different: it is only touched
// at startup and on shutdown, so a backend that flaps mid-run — a
// Redis restart, an NFS-mounted bolt file — should surface on the
// health endpoint and metrics rather than go unnoticed until the
// shutdown write fails. A Monitor polls the backend at a fixed
// cadence; there is no retry/backoff phase, because store.Open has
// already proven the backend once before a Monitor ever starts.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kovi-go/kovi/internal/buildinfo"
)

const (
	defaultInterval = 30 * time.Second
	defaultTimeout  = 5 * time.Second
)

// Pinger is the one capability the monitor needs from a store
// backend. store.Store satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config configures a Monitor.
type Config struct {
	Backend string // backend name for logs and /healthz, e.g. "bolt"
	Store   Pinger

	Interval time.Duration // poll cadence; default 30s
	Timeout  time.Duration // per-probe budget; default 5s

	// OnChange fires on every readiness transition, including the
	// initial probe. Called synchronously from the poll loop; must not
	// block.
	OnChange func(ready bool, err error)

	Logger *slog.Logger
}

// Status is the monitor's state as served on /healthz.
type Status struct {
	Backend   string            `json:"backend"`
	Ready     bool              `json:"ready"`
	LastCheck time.Time         `json:"last_check"`
	LastError string            `json:"last_error,omitempty"`
	Build     map[string]string `json:"build"`
}

// Monitor polls one store backend. Use NewMonitor, then Start.
type Monitor struct {
	backend  string
	store    Pinger
	interval time.Duration
	timeout  time.Duration
	onChange func(ready bool, err error)
	logger   *slog.Logger

	ready atomic.Bool

	mu        sync.Mutex
	lastErr   error
	lastCheck time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMonitor builds a Monitor. Panics if Backend is empty or Store is
// nil: both are wiring mistakes, not runtime conditions.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Backend == "" {
		panic("health: Config.Backend must not be empty")
	}
	if cfg.Store == nil {
		panic("health: Config.Store must not be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{
		backend:  cfg.Backend,
		store:    cfg.Store,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		onChange: cfg.OnChange,
		logger:   cfg.Logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start probes once synchronously, so Ready and the OnChange-driven
// gauge are correct as soon as Start returns, then polls in the
// background until ctx is cancelled or Close is called.
func (m *Monitor) Start(ctx context.Context) {
	m.started.Store(true)
	m.observe(m.probe(ctx))
	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.observe(m.probe(ctx))
		}
	}
}

func (m *Monitor) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.store.Ping(probeCtx)
}

// observe records a probe result and, on a readiness transition, logs
// it and fires OnChange.
func (m *Monitor) observe(err error) {
	now := time.Now()

	m.mu.Lock()
	transition := m.lastCheck.IsZero() || (m.lastErr == nil) != (err == nil)
	m.lastErr = err
	m.lastCheck = now
	m.mu.Unlock()

	ready := err == nil
	m.ready.Store(ready)

	if !transition {
		return
	}
	if ready {
		m.logger.Info("store backend reachable", "backend", m.backend)
	} else {
		m.logger.Warn("store backend unreachable", "backend", m.backend, "error", err)
	}
	if m.onChange != nil {
		m.onChange(ready, err)
	}
}

// Ready reports whether the last probe succeeded.
func (m *Monitor) Ready() bool { return m.ready.Load() }

// LastError returns the most recent probe error, or nil if healthy.
func (m *Monitor) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Status returns the current state plus build/uptime metadata for the
// /healthz payload.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		Backend:   m.backend,
		Ready:     m.ready.Load(),
		LastCheck: m.lastCheck,
		Build:     buildinfo.RuntimeInfo(),
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// Handler serves Status as JSON: 200 when the backend is reachable,
// 503 otherwise, so load balancers and uptime checks can consume it
// without parsing the body.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.Status()
		w.Header().Set("Content-Type", "application/json")
		if !s.Ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(s)
	})
}

// Close stops the poll loop and waits for it to exit. Safe to call
// more than once, and a no-op if Start was never called.
func (m *Monitor) Close() {
	if !m.started.Load() {
		return
	}
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}
