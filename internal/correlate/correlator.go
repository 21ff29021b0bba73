// Package correlate implements the API correlator: the map from an
// outgoing API call's echo token to its pending response sink.
package correlate

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/kovi-go/kovi/internal/bus"
)

// Sink receives the eventual result of a correlated call. A nil sink
// (represented by Request.Sink == nil in the pending map) means
// fire-and-forget.
type Sink chan Result

// Result is what a Sink receives: the raw response plus a convenience
// error that is non-nil iff Response.Status is not "ok".
type Result struct {
	Response Response
	Err      error
}

// Response mirrors the OneBot API reply wire shape.
type Response struct {
	Status  string
	Retcode int64
	Data    json.RawMessage
	Echo    string
}

// Request is an outgoing API call paired with its optional sink.
type Request struct {
	Action string
	Params json.RawMessage
	Echo   string
	Sink   Sink // nil for fire-and-forget
}

// Correlator holds echo -> (request, sink) for in-flight API calls.
// The map is the only place holding a sink; on removal, exactly one of
// (delivery, drop) happens, never both and never neither.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]Request

	bus    *bus.Bus
	logger *slog.Logger
}

// New creates a Correlator that emits OneBotApiEvent notifications onto b.
func New(b *bus.Bus, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		pending: make(map[string]Request),
		bus:     b,
		logger:  logger,
	}
}

// Register inserts req into the map before the frame is sent. Callers
// must call Register before writing the frame to the socket, never
// after — this is the ordering invariant spec calls out explicitly.
func (c *Correlator) Register(req Request) {
	c.mu.Lock()
	c.pending[req.Echo] = req
	c.mu.Unlock()
}

// Forget removes req.Echo without delivering anything. Used when the
// write itself fails, so the entry doesn't leak.
func (c *Correlator) Forget(echo string) {
	c.mu.Lock()
	delete(c.pending, echo)
	c.mu.Unlock()
}

// Resolve handles one inbound API response frame: looks up its echo,
// removes the entry, delivers to the sink (if any), and always
// publishes a OneBotApiEvent so observers see outgoing traffic — even
// for fire-and-forget calls and even when delivery has no listener.
func (c *Correlator) Resolve(resp Response) {
	c.mu.Lock()
	req, ok := c.pending[resp.Echo]
	if ok {
		delete(c.pending, resp.Echo)
	}
	c.mu.Unlock()

	if !ok {
		// Replies without a registered echo are never silently
		// consumed into plugin observability: log and drop.
		c.logger.Error("api response with unknown echo", "echo", resp.Echo)
		return
	}

	ok2 := strings.EqualFold(resp.Status, "ok")
	var err error
	if !ok2 {
		err = &DomainError{Response: resp}
	}

	if req.Sink != nil {
		select {
		case req.Sink <- Result{Response: resp, Err: err}:
		default:
			// Caller gave up (channel unbuffered/full/receiver gone).
			// Non-fatal per spec's error taxonomy.
			c.logger.Debug("api reply delivery dropped, receiver not waiting", "echo", resp.Echo)
		}
	}

	c.publishAPIEvent(req, resp, ok2)
}

func (c *Correlator) publishAPIEvent(req Request, resp Response, ok bool) {
	if c.bus == nil {
		return
	}
	payload := bus.APIEventPayload{
		Action:  req.Action,
		Params:  req.Params,
		Echo:    req.Echo,
		Status:  resp.Status,
		Retcode: resp.Retcode,
		Data:    resp.Data,
		Ok:      ok,
	}
	// Best-effort, non-blocking: the correlator must never stall
	// waiting for bus room just to report an API call it already
	// fully resolved.
	if !c.bus.TryPublish(bus.InternalEvent{Kind: bus.KindOneBotAPIEvent, API: payload}) {
		c.logger.Warn("event bus full, dropped OneBotApiEvent", "echo", req.Echo)
	}
}

// DomainError wraps a well-formed API reply whose status != "ok". It
// is still a valid correlated reply, not a transport error.
type DomainError struct {
	Response Response
}

func (e *DomainError) Error() string {
	return "kovi: api call failed: status=" + e.Response.Status
}

// PendingCount returns the number of in-flight calls. Exposed for tests
// and metrics.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
