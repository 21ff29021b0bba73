package kovi

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/kovi-go/kovi/event"
	"github.com/kovi-go/kovi/internal/bus"
	"github.com/kovi-go/kovi/metrics"
	"github.com/kovi-go/kovi/plugin"
	"github.com/kovi-go/kovi/runtime"
)

// decodeEntry is one slot of the dispatcher's per-event cache: the
// result of running a tag's decoder exactly once, good or bad,
// memoized for every listener sharing that tag (spec §4.4 item 1, P3).
type decodeEntry struct {
	val any
	ok  bool
}

// Dispatcher pulls InternalEvents off the Event Bus, decodes each at
// most once per type, and fans out to registered plugin listeners
// with access-control and enable/disable gating. Grounded on spec
// §4.4; there is no equivalent single file in the teacher, since the
// teacher has no typed-event demultiplexing concern at all.
type Dispatcher struct {
	rt      *runtime.Bot
	plugins func() []*plugin.Plugin
	logger  *slog.Logger

	identityFetched atomic.Bool
}

// NewDispatcher constructs a Dispatcher. plugins is called fresh on
// every dispatched event, so plugin registration changes (none occur
// after startup, but tests may vary) are always observed.
func NewDispatcher(rt *runtime.Bot, plugins func() []*plugin.Plugin, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{rt: rt, plugins: plugins, logger: logger}
}

// Run reads from recv until ctx is done, the channel closes, or a
// Drop event arrives, in which case onDrop is invoked with the
// triggering cause (nil for a clean shutdown) and Run returns.
func (d *Dispatcher) Run(ctx context.Context, recv <-chan bus.InternalEvent, onDrop func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-recv:
			if !ok {
				return
			}
			switch ev.Kind {
			case bus.KindDrop:
				if onDrop != nil {
					onDrop(ev.DropCause)
				}
				return
			case bus.KindOneBotEvent:
				d.dispatchRaw(ctx, ev.Raw)
			case bus.KindOneBotAPIEvent:
				d.dispatchAPI(ctx, ev.API)
			}
		}
	}
}

func (d *Dispatcher) decodeContext() event.DecodeContext {
	return event.DecodeContext{
		SelfID:         d.rt.SelfID(),
		Nickname:       d.rt.Nickname(),
		AdminID:        d.rt.AdminID(),
		DeputyAdminIDs: d.rt.DeputyIDs(),
	}
}

func (d *Dispatcher) dispatchRaw(ctx context.Context, data json.RawMessage) {
	raw, err := event.ParseRaw(data)
	if err != nil {
		metrics.EventsDroppedTotal.WithLabelValues("unparsable").Inc()
		d.logger.Debug("dropping unparsable event frame", "error", err)
		return
	}
	metrics.EventsDispatchedTotal.WithLabelValues(string(raw.PostType)).Inc()
	dc := d.decodeContext()
	cache := map[string]decodeEntry{}

	// Built-in pre-processing (spec §4.4 item 2): unconditionally try
	// Lifecycle, and eagerly decode the umbrella Message so access
	// control and the standard log line have it without re-parsing.
	if _, ok := cachedDecode(cache, event.TagOf[*event.LifecycleEvent](), event.Erase(event.DecodeLifecycle), raw, dc); ok {
		d.handleLifecycle()
	}
	if v, ok := cachedDecode(cache, event.TagOf[*event.MsgEvent](), event.Erase(event.DecodeMsg), raw, dc); ok {
		m := v.(*event.MsgEvent)
		d.logger.Info("message", "type", m.MessageType, "group_id", m.GroupID, "user_id", m.UserID, "text", m.RawText)
	}

	for _, p := range d.plugins() {
		for _, l := range p.Listeners() {
			if l.DecodeRaw == nil {
				continue // API-sourced listener; not reachable from a server push
			}
			if l.IsMessage && !d.allowByAccessControl(p, cache) {
				metrics.EventsDroppedTotal.WithLabelValues("access_control").Inc()
				continue
			}
			val, ok := cachedDecode(cache, l.Tag, l.DecodeRaw, raw, dc)
			if !ok {
				continue
			}
			d.spawn(ctx, p, l, val)
		}
	}
}

// allowByAccessControl applies a plugin's access policy using the
// eagerly-decoded umbrella Message, if this event decoded as one at
// all. Non-message events never reach a message-gated listener's own
// decode anyway, so returning true here for them is harmless.
func (d *Dispatcher) allowByAccessControl(p *plugin.Plugin, cache map[string]decodeEntry) bool {
	entry, found := cache[event.TagOf[*event.MsgEvent]()]
	if !found || !entry.ok {
		return true
	}
	m := entry.val.(*event.MsgEvent)
	return p.ActivePolicy().Allow(m.GroupID, m.UserID)
}

func (d *Dispatcher) dispatchAPI(ctx context.Context, payload bus.APIEventPayload) {
	snap := event.APIEventSnapshot{
		Action:  payload.Action,
		Params:  payload.Params,
		Echo:    payload.Echo,
		Status:  payload.Status,
		Retcode: payload.Retcode,
		Data:    payload.Data,
		Ok:      payload.Ok,
	}
	dc := d.decodeContext()
	cache := map[string]decodeEntry{}

	for _, p := range d.plugins() {
		for _, l := range p.Listeners() {
			if l.DecodeAPI == nil {
				continue
			}
			val, ok := cachedDecodeAPI(cache, l.Tag, l.DecodeAPI, snap, dc)
			if !ok {
				continue
			}
			d.spawn(ctx, p, l, val)
		}
	}
}

func cachedDecode(cache map[string]decodeEntry, tag string, decode event.ErasedDecoder, raw *event.Raw, dc event.DecodeContext) (any, bool) {
	if e, found := cache[tag]; found {
		return e.val, e.ok
	}
	val, ok := decode(raw, dc)
	cache[tag] = decodeEntry{val: val, ok: ok}
	return val, ok
}

func cachedDecodeAPI(cache map[string]decodeEntry, tag string, decode func(event.APIEventSnapshot, event.DecodeContext) (any, bool), snap event.APIEventSnapshot, dc event.DecodeContext) (any, bool) {
	if e, found := cache[tag]; found {
		return e.val, e.ok
	}
	val, ok := decode(snap, dc)
	cache[tag] = decodeEntry{val: val, ok: ok}
	return val, ok
}

// handleLifecycle fires the self-identity fetch exactly once, on the
// first successfully decoded Lifecycle event ever seen (spec §4.4
// item 2), regardless of which sub_type it carries.
func (d *Dispatcher) handleLifecycle() {
	if !d.identityFetched.CompareAndSwap(false, true) {
		return
	}
	go func() {
		resp, err := d.rt.SendAPIReturn(context.Background(), "get_login_info", nil)
		if err != nil {
			d.logger.Warn("get_login_info failed", "error", err)
			return
		}
		var data struct {
			UserID   int64  `json:"user_id"`
			Nickname string `json:"nickname"`
		}
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			d.logger.Warn("get_login_info reply unparsable", "error", err)
			return
		}
		d.rt.SetIdentity(data.UserID, data.Nickname)
	}()
}

// spawn starts a listener task racing the handler against the
// plugin's enable signal, per spec §4.4 item 3 and properties P4/P5:
// no new task starts once the plugin is already disabled, and the
// task is tracked so Plugin.Shutdown can await it before running drop
// hooks.
func (d *Dispatcher) spawn(ctx context.Context, p *plugin.Plugin, l *plugin.Listener, val any) {
	done, changed, ok := p.BeginTask()
	if !ok {
		metrics.EventsDroppedTotal.WithLabelValues("plugin_disabled").Inc()
		return
	}
	metrics.ListenerTasksTotal.WithLabelValues(p.Name).Inc()
	go func() {
		defer done()

		taskCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-changed:
				cancel()
			case <-stop:
			}
		}()

		l.Handle(taskCtx, d.rt, val)
	}()
}
