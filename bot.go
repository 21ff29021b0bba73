package kovi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kovi-go/kovi/internal/bus"
	"github.com/kovi-go/kovi/plugin"
	"github.com/kovi-go/kovi/runtime"
	"github.com/kovi-go/kovi/scheduler"

	"github.com/kovi-go/kovi/internal/transport"
)

const (
	defaultBusCapacity      = 256
	defaultOutboundCapacity = 64
)

// Bot owns a single OneBot connection: its plugin map, its transport,
// and the dispatcher/scheduler/runtime-handle wiring that ties them
// together. Grounded on original_source/src/bot/mod.rs's Bot struct,
// re-expressed with Go's sync.RWMutex/channels in place of tokio's
// RwLock/watch primitives.
type Bot struct {
	server         Server
	adminID        int64
	deputyAdminIDs []int64
	logger         *slog.Logger

	mu      sync.RWMutex
	plugins map[string]*plugin.Plugin

	bus        *bus.Bus
	transport  *transport.Transport
	rt         *runtime.Bot
	dispatcher *Dispatcher
	sched      *scheduler.Scheduler

	shutdownOnce sync.Once
}

// New constructs a Bot for the given server. It does not connect —
// call Run to dial both WebSockets and start dispatching.
func New(server Server) *Bot {
	return newBot(server, 0, nil, slog.Default())
}

func newBot(server Server, adminID int64, deputyAdminIDs []int64, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	b := bus.New(defaultBusCapacity)
	tr := transport.New(transport.Server{
		Host:  server.Host,
		Port:  server.Port,
		Token: server.Token,
		TLS:   server.TLS,
	}, b, logger, defaultOutboundCapacity)
	rt := runtime.New(runtime.Server{
		Host:  server.Host,
		Port:  server.Port,
		Token: server.Token,
		TLS:   server.TLS,
	}, adminID, deputyAdminIDs, tr.Outbound(), tr.NewEcho, logger)

	bot := &Bot{
		server:         server,
		adminID:        adminID,
		deputyAdminIDs: deputyAdminIDs,
		logger:         logger,
		plugins:        map[string]*plugin.Plugin{},
		bus:            b,
		transport:      tr,
		rt:             rt,
		sched:          scheduler.New(logger),
	}
	bot.dispatcher = NewDispatcher(rt, bot.pluginsSnapshot, logger)
	return bot
}

// WithAdmin sets the main admin user id and, optionally, deputy admin
// ids. Must be called before any Plugin registration: it replaces the
// shared Runtime Handle, and a plugin's cron tasks capture the handle
// in place at registration time.
func (b *Bot) WithAdmin(adminID int64, deputyAdminIDs ...int64) *Bot {
	b.adminID = adminID
	b.deputyAdminIDs = deputyAdminIDs
	b.rt = runtime.New(runtime.Server{Host: b.server.Host, Port: b.server.Port, Token: b.server.Token, TLS: b.server.TLS},
		adminID, deputyAdminIDs, b.transport.Outbound(), b.transport.NewEcho, b.logger)
	b.dispatcher = NewDispatcher(b.rt, b.pluginsSnapshot, b.logger)
	return b
}

// Runtime returns the shared Runtime Handle, useful for issuing API
// calls outside a listener (e.g. from cmd/kovi's CLI).
func (b *Bot) Runtime() *runtime.Bot { return b.rt }

// SetAdmin updates the main admin id and deputy set on the live
// Runtime Handle, without rebuilding the dispatcher or disturbing the
// transport connection. Unlike WithAdmin, this is safe to call while
// Run is in progress — it's how cmd/kovi applies a config hot-reload's
// admin.main_id/admin.deputies change.
func (b *Bot) SetAdmin(adminID int64, deputyAdminIDs ...int64) {
	b.adminID = adminID
	b.deputyAdminIDs = deputyAdminIDs
	b.rt.SetAdmin(adminID, deputyAdminIDs)
}

// Lookup returns the registered plugin named name, if any, so callers
// (e.g. cmd/kovi's config hot-reload) can update its access policy or
// enabled signal without holding a separate reference.
func (b *Bot) Lookup(name string) (*plugin.Plugin, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.plugins[name]
	return p, ok
}

// Plugin registers a new plugin named name and runs build against a
// fresh Builder scoped to it, per spec §4.5's build phase. Returns
// ErrPluginExists if name is already registered.
func (b *Bot) Plugin(name string, build func(*plugin.Builder)) (*plugin.Plugin, error) {
	b.mu.Lock()
	if _, exists := b.plugins[name]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("kovi: plugin %q: %w", name, ErrPluginExists)
	}
	p := plugin.New(name)
	b.plugins[name] = p
	b.mu.Unlock()

	builder := plugin.NewBuilder(p, b.sched, b.rt)
	build(builder)
	return p, nil
}

func (b *Bot) pluginsSnapshot() []*plugin.Plugin {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*plugin.Plugin, 0, len(b.plugins))
	for _, p := range b.plugins {
		out = append(out, p)
	}
	return out
}

// Run dials both WebSocket connections and dispatches events until
// ctx is cancelled or a transport failure emits Drop, whichever comes
// first. On return, every plugin has been shut down (P5). The
// returned error is nil for a clean, operator-requested stop.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.transport.Start(ctx); err != nil {
		return fmt.Errorf("kovi: startup failed: %w", err)
	}
	defer b.transport.Close()

	var dropCause error
	done := make(chan struct{})
	go func() {
		b.dispatcher.Run(ctx, b.bus.Receive(), func(cause error) { dropCause = cause })
		close(done)
	}()

	// Wait for the dispatcher loop itself to return in both cases: it
	// observes the same ctx, and shutting plugins down while it could
	// still be mid-dispatch would let a listener task start after its
	// plugin's drop hooks.
	select {
	case <-ctx.Done():
		<-done
	case <-done:
	}

	b.Shutdown(context.Background())
	return dropCause
}

// Shutdown disables every plugin, awaits their in-flight listener and
// cron tasks, and runs their drop hooks, per spec §4.5/P5. Safe to
// call more than once; only the first call has effect.
func (b *Bot) Shutdown(ctx context.Context) {
	b.shutdownOnce.Do(func() {
		plugins := b.pluginsSnapshot()
		var wg sync.WaitGroup
		for _, p := range plugins {
			wg.Add(1)
			go func(p *plugin.Plugin) {
				defer wg.Done()
				p.Shutdown(ctx)
			}(p)
		}
		wg.Wait()
	})
}
