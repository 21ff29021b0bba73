// Package transport opens and maintains the two WebSocket connections
// a Kovi bot needs: /event (server -> client push) and /api (client <->
// server RPC). It does not reconnect on failure — a transport failure
// is surfaced as a Drop on the event bus and the operator restarts the
// process, per spec's Non-goals.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kovi-go/kovi/internal/bus"
	"github.com/kovi-go/kovi/internal/correlate"
)

// Server holds the connection parameters. Mirrors the root kovi.Server
// shape without importing the root package (which would create an
// import cycle: kovi -> transport -> kovi).
type Server struct {
	Host  string
	Port  int
	Token string
	TLS   bool
}

// Transport owns both WebSocket connections and the outbound API queue.
type Transport struct {
	cfg    Server
	logger *slog.Logger

	bus        *bus.Bus
	correlator *correlate.Correlator
	outbound   chan correlate.Request

	eventConn *websocket.Conn
	apiConn   *websocket.Conn

	dropOnce sync.Once
	dropErr  atomic.Value // error
	dropCh   chan struct{}
}

// New creates a Transport. outboundCapacity bounds the API request
// queue between plugin Runtime Handles and the /api writer goroutine.
func New(cfg Server, b *bus.Bus, logger *slog.Logger, outboundCapacity int) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if outboundCapacity <= 0 {
		outboundCapacity = 64
	}
	return &Transport{
		cfg:        cfg,
		logger:     logger,
		bus:        b,
		correlator: correlate.New(b, logger),
		outbound:   make(chan correlate.Request, outboundCapacity),
		dropCh:     make(chan struct{}),
	}
}

// Correlator returns the API correlator backing this transport.
func (t *Transport) Correlator() *correlate.Correlator { return t.correlator }

// Outbound returns the send side of the bounded outbound API queue.
// Callers (the Runtime Handle) are responsible for the try-send-first,
// spawn-on-full policy described in spec §4.7 — Transport itself only
// owns the channel and the goroutine draining it.
func (t *Transport) Outbound() chan<- correlate.Request { return t.outbound }

// NewEcho generates a fresh, unique echo token for an outgoing request.
func (t *Transport) NewEcho() string { return uuid.NewString() }

// Dropped returns a channel closed once the transport has failed and
// emitted a Drop. Dispatcher/shutdown code can select on it instead of
// only relying on the bus.
func (t *Transport) Dropped() <-chan struct{} { return t.dropCh }

// DropErr returns the error that caused the drop, if any, after
// Dropped() has fired.
func (t *Transport) DropErr() error {
	if v := t.dropErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Start dials both sockets and starts their reader/writer goroutines.
// Both connections must succeed before Start returns; if either dial
// fails, Start aborts and returns the originating error without
// leaving a half-open transport (the other socket, if opened, is
// closed first).
func (t *Transport) Start(ctx context.Context) error {
	eventURL := t.wsURL("/event")
	apiURL := t.wsURL("/api")
	header := t.authHeader()

	eventConn, _, err := websocket.DefaultDialer.DialContext(ctx, eventURL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", eventURL, err)
	}

	apiConn, _, err := websocket.DefaultDialer.DialContext(ctx, apiURL, header)
	if err != nil {
		eventConn.Close()
		return fmt.Errorf("dial %s: %w", apiURL, err)
	}

	t.eventConn = eventConn
	t.apiConn = apiConn

	go t.readEventLoop()
	go t.readAPILoop()
	go t.writeAPILoop()

	return nil
}

// Close closes both sockets. Idempotent.
func (t *Transport) Close() {
	if t.eventConn != nil {
		t.eventConn.Close()
	}
	if t.apiConn != nil {
		t.apiConn.Close()
	}
}

func (t *Transport) wsURL(path string) string {
	scheme := "ws"
	if t.cfg.TLS {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port),
		Path:   path,
	}
	return u.String()
}

func (t *Transport) authHeader() http.Header {
	if t.cfg.Token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+t.cfg.Token)
	return h
}

// drop emits a framework Drop exactly once, publishing it onto the bus
// and closing Dropped().
func (t *Transport) drop(cause error) {
	t.dropOnce.Do(func() {
		if cause != nil {
			t.dropErr.Store(cause)
			t.logger.Error("transport failure, initiating shutdown", "error", cause)
		}
		ctx := context.Background()
		_ = t.bus.Publish(ctx, bus.InternalEvent{Kind: bus.KindDrop, DropCause: cause})
		close(t.dropCh)
	})
}
