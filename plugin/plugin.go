// Package plugin implements the Plugin Registry: per-plugin state,
// the build-phase registration API, and orderly shutdown, grounded on
// original_source/src/plugin/plugin_builder.rs.
package plugin

import (
	"context"
	"sync"

	"github.com/kovi-go/kovi/metrics"
	"github.com/kovi-go/kovi/scheduler"
)

// Plugin holds everything the dispatcher and scheduler need to know
// about one registered plugin: its listeners, its access-control
// policy, its enable signal, and its shutdown hooks.
type Plugin struct {
	Name string

	mu        sync.Mutex
	listeners []*Listener
	dropHooks []func(context.Context)
	cronTasks []*scheduler.Task
	draining  bool

	Enable *Signal
	Policy *AccessPolicy

	wg         sync.WaitGroup
	shutdownOnce sync.Once
}

// New returns a Plugin with access control disabled and enabled=true,
// matching spec §3's stated initial state.
func New(name string) *Plugin {
	metrics.PluginsEnabled.Inc()
	return &Plugin{
		Name:   name,
		Enable: NewSignal(true),
		Policy: NewAccessPolicy(),
	}
}

// SetEnabled updates the plugin's enable signal and keeps the
// process-wide PluginsEnabled gauge in sync with it. Prefer this over
// calling Enable.Set directly outside of this package: the transition
// happens under the same lock BeginTask takes, so no new task can
// register after the signal has flipped to false.
func (p *Plugin) SetEnabled(v bool) {
	p.mu.Lock()
	before := p.Enable.Get()
	p.Enable.Set(v)
	p.mu.Unlock()
	if before == v {
		return
	}
	if v {
		metrics.PluginsEnabled.Inc()
	} else {
		metrics.PluginsEnabled.Dec()
	}
}

// Listeners returns a snapshot of the registered listeners. Safe to
// call concurrently with the build phase only because the build phase
// itself runs to completion before dispatch begins (spec §4.5).
func (p *Plugin) Listeners() []*Listener {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Listener, len(p.listeners))
	copy(out, p.listeners)
	return out
}

// SetPolicy replaces the plugin's access policy in place. Used by
// cmd/kovi's config hot-reload to apply a changed plugins.<name>.access
// block to an already-running plugin.
func (p *Plugin) SetPolicy(policy *AccessPolicy) {
	p.mu.Lock()
	p.Policy = policy
	p.mu.Unlock()
}

// ActivePolicy returns the policy currently in effect, under the same
// lock SetPolicy swaps it with, so a config hot-reload never races a
// dispatch in progress.
func (p *Plugin) ActivePolicy() *AccessPolicy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Policy
}

func (p *Plugin) addListener(l *Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, l)
	p.mu.Unlock()
}

func (p *Plugin) addDropHook(h func(context.Context)) {
	p.mu.Lock()
	p.dropHooks = append(p.dropHooks, h)
	p.mu.Unlock()
}

func (p *Plugin) addCronTask(t *scheduler.Task) {
	p.mu.Lock()
	p.cronTasks = append(p.cronTasks, t)
	p.mu.Unlock()
}

// BeginTask atomically checks the enable signal and registers one
// in-flight listener/cron invocation with the plugin's shutdown
// barrier, under the same lock SetEnabled and Shutdown take. ok is
// false once the plugin is disabled or Shutdown has begun draining;
// no task may start then. The atomicity is what makes "no new
// listener task after disable" hold: there is no window between the
// check and the registration. On ok, callers must invoke done exactly
// once when the task ends, and race their work against the returned
// change channel.
func (p *Plugin) BeginTask() (done func(), changed <-chan struct{}, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	enabled, ch := p.Enable.Watch()
	if !enabled || p.draining {
		return nil, nil, false
	}
	p.wg.Add(1)
	return p.wg.Done, ch, true
}

// Shutdown implements spec §4.5's shutdown sequence and property P5:
// disable, await in-flight tasks, then run drop hooks in registration
// order exactly once. Safe to call more than once; only the first
// call has effect.
func (p *Plugin) Shutdown(ctx context.Context) {
	p.shutdownOnce.Do(func() {
		// Mark draining before waiting: after this, BeginTask refuses
		// every caller, so wg can only count down.
		p.mu.Lock()
		p.draining = true
		p.mu.Unlock()

		p.SetEnabled(false)

		p.mu.Lock()
		tasks := p.cronTasks
		p.mu.Unlock()
		for _, t := range tasks {
			t.Stop()
		}

		p.wg.Wait()

		p.mu.Lock()
		hooks := p.dropHooks
		p.mu.Unlock()
		for _, hook := range hooks {
			hook(ctx)
		}
	})
}
