// Package runtime implements the per-plugin Runtime Handle: the
// object plugin code actually holds to send API calls and read bot
// metadata, grounded on original_source/src/bot/runtimebot.rs.
//
// A *Bot here is the single owner of mutable bot identity (self id,
// nickname, once known from the first Lifecycle event). The root kovi
// package holds a reference to this type rather than the reverse, so
// there is no back-reference from runtime to the root package at all
// — the "weak reference" problem the original solves with Weak<Bot>
// doesn't arise in Go, because nothing here needs to reach back into
// plugin-map state owned by the root Bot. See DESIGN.md.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kovi-go/kovi/internal/correlate"
	"github.com/kovi-go/kovi/metrics"
)

// Server mirrors the immutable connection parameters a plugin may
// want to read back. Duplicated from the root package's Server type
// for the same reason internal/transport.Server is: avoiding an
// import of the root package from here.
type Server struct {
	Host  string
	Port  int
	Token string
	TLS   bool
}

// Bot is the Runtime Handle passed to every plugin listener and cron
// handler. It is safe for concurrent use.
type Bot struct {
	server Server

	adminMu        sync.RWMutex
	adminID        int64
	deputyAdminIDs map[int64]struct{}

	selfID   atomic.Int64
	nickname atomic.Value // string

	outbound chan<- correlate.Request
	newEcho  func() string
	logger   *slog.Logger
}

// New constructs a Runtime Handle. outbound is the transport's
// outbound API queue; newEcho generates a fresh correlator token per
// call.
func New(server Server, adminID int64, deputyAdminIDs []int64, outbound chan<- correlate.Request, newEcho func() string, logger *slog.Logger) *Bot {
	deputies := make(map[int64]struct{}, len(deputyAdminIDs))
	for _, id := range deputyAdminIDs {
		deputies[id] = struct{}{}
	}
	b := &Bot{
		server:         server,
		adminID:        adminID,
		deputyAdminIDs: deputies,
		outbound:       outbound,
		newEcho:        newEcho,
		logger:         logger,
	}
	b.nickname.Store("")
	return b
}

func (b *Bot) Host() string { return b.server.Host }
func (b *Bot) Port() int    { return b.server.Port }
func (b *Bot) TLS() bool    { return b.server.TLS }

func (b *Bot) AdminID() int64 {
	b.adminMu.RLock()
	defer b.adminMu.RUnlock()
	return b.adminID
}

// SetAdmin replaces the main admin id and deputy set in place, without
// disturbing any in-flight listener or the transport connection. Used
// by cmd/kovi's config hot-reload: the admin list is part of the
// mutable config subset, unlike the server connection parameters.
func (b *Bot) SetAdmin(adminID int64, deputyAdminIDs []int64) {
	deputies := make(map[int64]struct{}, len(deputyAdminIDs))
	for _, id := range deputyAdminIDs {
		deputies[id] = struct{}{}
	}
	b.adminMu.Lock()
	defer b.adminMu.Unlock()
	b.adminID = adminID
	b.deputyAdminIDs = deputies
}

// SelfID is 0 until the first Lifecycle event's get_login_info reply
// populates it.
func (b *Bot) SelfID() int64 { return b.selfID.Load() }

// Nickname is "" until the same reply populates it.
func (b *Bot) Nickname() string { return b.nickname.Load().(string) }

// IsAdmin reports whether userID is the configured main admin or one
// of its deputies.
func (b *Bot) IsAdmin(userID int64) bool {
	b.adminMu.RLock()
	defer b.adminMu.RUnlock()
	if userID == b.adminID {
		return true
	}
	_, ok := b.deputyAdminIDs[userID]
	return ok
}

// DeputyIDs returns the configured deputy admin ids, for building an
// event.DecodeContext.
func (b *Bot) DeputyIDs() []int64 {
	b.adminMu.RLock()
	defer b.adminMu.RUnlock()
	ids := make([]int64, 0, len(b.deputyAdminIDs))
	for id := range b.deputyAdminIDs {
		ids = append(ids, id)
	}
	return ids
}

// SetIdentity is called by the dispatcher once, after the first
// successful get_login_info round trip following a Lifecycle event.
func (b *Bot) SetIdentity(selfID int64, nickname string) {
	b.selfID.Store(selfID)
	b.nickname.Store(nickname)
}

// SendAPI issues a fire-and-forget API call: no reply sink is
// registered, so the server's response (if any) is only observable
// through the API event it produces (a MsgSendFromKoviEvent for the
// send_*_msg verbs, or any other API-event listener). Satisfies
// event.APISender.
func (b *Bot) SendAPI(action string, params map[string]any) {
	metrics.APICallsTotal.WithLabelValues(action, "sent").Inc()
	b.send(action, params, nil)
}

// SendAPIReturn issues an API call and awaits its correlated reply,
// or ctx's cancellation, whichever comes first. Per spec §5, no
// implicit timeout is applied — callers race their own deadline.
func (b *Bot) SendAPIReturn(ctx context.Context, action string, params map[string]any) (correlate.Response, error) {
	timer := metrics.NewTimer()
	sink := make(correlate.Sink, 1)
	echo := b.send(action, params, sink)
	if echo == "" {
		metrics.APICallsTotal.WithLabelValues(action, "marshal_error").Inc()
		return correlate.Response{}, fmt.Errorf("runtime: marshal params for %s: invalid params", action)
	}
	select {
	case res := <-sink:
		outcome := "ok"
		if res.Err != nil {
			outcome = "error"
		}
		metrics.APICallsTotal.WithLabelValues(action, outcome).Inc()
		timer.ObserveDurationVec(metrics.APICallDuration, action)
		return res.Response, res.Err
	case <-ctx.Done():
		metrics.APICallsTotal.WithLabelValues(action, "ctx_done").Inc()
		timer.ObserveDurationVec(metrics.APICallDuration, action)
		return correlate.Response{}, ctx.Err()
	}
}

// send marshals params, assigns a fresh echo, and enqueues the
// request using the try-send-first / spawn-on-full policy from spec
// §4.7: a non-blocking send is attempted first; if the outbound queue
// is saturated, a helper goroutine performs the blocking send so the
// calling listener never stalls. Returns "" if params couldn't be
// marshaled.
func (b *Bot) send(action string, params map[string]any, sink correlate.Sink) string {
	raw, err := json.Marshal(params)
	if err != nil {
		b.logf("runtime: marshal params for %s failed: %v", action, err)
		return ""
	}
	echo := b.newEcho()
	req := correlate.Request{Action: action, Params: raw, Echo: echo, Sink: sink}

	select {
	case b.outbound <- req:
		return echo
	default:
		go func() { b.outbound <- req }()
		return echo
	}
}

func (b *Bot) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(fmt.Sprintf(format, args...))
	}
}
