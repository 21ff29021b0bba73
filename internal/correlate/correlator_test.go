package correlate

import (
	"testing"
	"time"

	"github.com/kovi-go/kovi/internal/bus"
)

// TestP1CorrelationUniqueness covers spec property P1: each pending
// reply is delivered to the exact caller that originated its echo,
// even when replies arrive out of request order.
func TestP1CorrelationUniqueness(t *testing.T) {
	b := bus.New(8)
	c := New(b, nil)

	sinkE3 := make(Sink, 1)
	sinkE4 := make(Sink, 1)
	c.Register(Request{Action: "send_group_msg", Echo: "E3", Sink: sinkE3})
	c.Register(Request{Action: "send_group_msg", Echo: "E4", Sink: sinkE4})

	// Server replies E4 then E3.
	c.Resolve(Response{Status: "ok", Echo: "E4"})
	c.Resolve(Response{Status: "ok", Echo: "E3"})

	select {
	case r := <-sinkE3:
		if r.Response.Echo != "E3" {
			t.Fatalf("sinkE3 got echo %s", r.Response.Echo)
		}
	case <-time.After(time.Second):
		t.Fatal("sinkE3 never received a reply")
	}

	select {
	case r := <-sinkE4:
		if r.Response.Echo != "E4" {
			t.Fatalf("sinkE4 got echo %s", r.Response.Echo)
		}
	case <-time.After(time.Second):
		t.Fatal("sinkE4 never received a reply")
	}
}

// TestP2NoGhostDeliveries covers spec property P2: an unregistered
// echo is dropped, never delivered anywhere.
func TestP2NoGhostDeliveries(t *testing.T) {
	c := New(nil, nil)
	// No Register call for "ghost" — Resolve must just log and return.
	c.Resolve(Response{Status: "ok", Echo: "ghost"})
	if c.PendingCount() != 0 {
		t.Fatalf("pending count should remain 0, got %d", c.PendingCount())
	}
}

func TestResolveCaseInsensitiveStatus(t *testing.T) {
	c := New(nil, nil)
	sink := make(Sink, 1)
	c.Register(Request{Echo: "E1", Sink: sink})
	c.Resolve(Response{Status: "OK", Echo: "E1"})

	r := <-sink
	if r.Err != nil {
		t.Fatalf("expected OK (case-insensitive) to be treated as success, got err %v", r.Err)
	}
}

func TestResolveDomainFailureStillDelivered(t *testing.T) {
	c := New(nil, nil)
	sink := make(Sink, 1)
	c.Register(Request{Echo: "E1", Sink: sink})
	c.Resolve(Response{Status: "failed", Retcode: 100, Echo: "E1"})

	r := <-sink
	if r.Err == nil {
		t.Fatal("expected a domain error for non-ok status")
	}
}

func TestEntryRemovedExactlyOnce(t *testing.T) {
	c := New(nil, nil)
	c.Register(Request{Echo: "E1"})
	if c.PendingCount() != 1 {
		t.Fatalf("expected 1 pending, got %d", c.PendingCount())
	}
	c.Resolve(Response{Status: "ok", Echo: "E1"})
	if c.PendingCount() != 0 {
		t.Fatalf("expected 0 pending after resolve, got %d", c.PendingCount())
	}
	// Resolving again is a ghost delivery, not a double-delivery.
	c.Resolve(Response{Status: "ok", Echo: "E1"})
	if c.PendingCount() != 0 {
		t.Fatalf("expected 0 pending after duplicate resolve, got %d", c.PendingCount())
	}
}
