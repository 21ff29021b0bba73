// Package bus provides the in-process event queue between the
// transport's reader goroutines and the dispatcher. Unlike a
// broadcast pub/sub bus, this is a single-producer-per-source,
// single-consumer bounded queue: its only job is to preserve FIFO
// arrival order while giving the dispatcher back-pressure over the
// transport. Nil-safe: calling Publish on a nil *Bus is a no-op, so
// callers constructed before the bus exists don't need guard checks.
package bus

import (
	"context"
	"encoding/json"
)

// Kind tags the variant held by an InternalEvent.
type Kind int

const (
	// KindOneBotEvent is a server-pushed event frame, carried as raw JSON.
	KindOneBotEvent Kind = iota
	// KindOneBotAPIEvent is synthesized after an outgoing API call
	// completes, so plugins can observe messages the bot itself sent.
	KindOneBotAPIEvent
	// KindDrop is a framework-originated shutdown request.
	KindDrop
)

// APIEventPayload is the content of a KindOneBotAPIEvent.
type APIEventPayload struct {
	Action  string
	Params  json.RawMessage
	Echo    string
	Status  string
	Retcode int64
	Data    json.RawMessage
	Ok      bool
}

// InternalEvent is the tagged union that flows through the bus:
// OneBotEvent(raw json), OneBotApiEvent(request, result), or
// FrameworkEvent::Drop, per spec's data model.
type InternalEvent struct {
	Kind Kind

	// Populated when Kind == KindOneBotEvent.
	Raw json.RawMessage

	// Populated when Kind == KindOneBotAPIEvent.
	API APIEventPayload

	// Populated when Kind == KindDrop: the error that triggered
	// shutdown, if any (nil for a clean operator-requested shutdown).
	DropCause error
}

// Bus is a bounded FIFO queue of InternalEvent. Publish blocks when
// the queue is full, providing the back-pressure spec calls for:
// "if the dispatcher lags, transport readers block."
type Bus struct {
	ch chan InternalEvent
}

// New creates a Bus with the given capacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bus{ch: make(chan InternalEvent, capacity)}
}

// Publish enqueues e, blocking until there is room or ctx is done.
// Safe to call on a nil receiver (no-op, returns nil).
func (b *Bus) Publish(ctx context.Context, e InternalEvent) error {
	if b == nil {
		return nil
	}
	select {
	case b.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the channel the dispatcher reads from.
func (b *Bus) Receive() <-chan InternalEvent {
	if b == nil {
		return nil
	}
	return b.ch
}

// TryPublish enqueues e without blocking, reporting false if the queue
// was full. Used by producers (the correlator's synthesized API
// events) that must never stall on back-pressure they didn't cause.
func (b *Bus) TryPublish(e InternalEvent) bool {
	if b == nil {
		return true
	}
	select {
	case b.ch <- e:
		return true
	default:
		return false
	}
}
