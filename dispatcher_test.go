package kovi

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kovi-go/kovi/event"
	"github.com/kovi-go/kovi/internal/bus"
	"github.com/kovi-go/kovi/internal/correlate"
	"github.com/kovi-go/kovi/plugin"
	"github.com/kovi-go/kovi/runtime"
)

func newTestRuntime(outbound chan correlate.Request, adminID int64) *runtime.Bot {
	var echoSeq atomic.Int64
	return runtime.New(runtime.Server{Host: "h", Port: 1}, adminID, nil, outbound, func() string {
		return "E" + string(rune('0'+echoSeq.Add(1)))
	}, nil)
}

func TestDispatchRawDecodeOnceAcrossListeners(t *testing.T) {
	outbound := make(chan correlate.Request, 4)
	rt := newTestRuntime(outbound, 0)

	p := plugin.New("demo")
	b := plugin.NewBuilder(p, nil, rt)

	var mu sync.Mutex
	var seen []*event.MsgEvent
	b.OnMsg(func(ctx context.Context, rt *runtime.Bot, e *event.MsgEvent) {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
	})
	b.OnGroupMsg(func(ctx context.Context, rt *runtime.Bot, e *event.GroupMsgEvent) {
		mu.Lock()
		seen = append(seen, e.MsgEvent)
		mu.Unlock()
	})

	d := NewDispatcher(rt, func() []*plugin.Plugin { return []*plugin.Plugin{p} }, nil)
	raw := []byte(`{"time":1,"self_id":1,"post_type":"message","message_type":"group","group_id":100,"user_id":5,"message_id":1,"message":"hi"}`)
	d.dispatchRaw(context.Background(), raw)

	p.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected both listeners to fire, got %d", len(seen))
	}
	if seen[0] != seen[1] {
		t.Fatal("expected both listeners to observe the identical decoded pointer (decode-once)")
	}
}

func TestDispatchLifecycleFetchesIdentity(t *testing.T) {
	outbound := make(chan correlate.Request, 4)
	rt := newTestRuntime(outbound, 0)
	d := NewDispatcher(rt, func() []*plugin.Plugin { return nil }, nil)

	go func() {
		req := <-outbound
		if req.Action != "get_login_info" {
			t.Errorf("expected get_login_info, got %s", req.Action)
		}
		req.Sink <- correlate.Result{Response: correlate.Response{
			Status: "ok",
			Data:   []byte(`{"user_id":10001,"nickname":"Kovi"}`),
			Echo:   req.Echo,
		}}
	}()

	lifecycle := []byte(`{"time":1700000000,"self_id":10001,"post_type":"meta_event","meta_event_type":"lifecycle","sub_type":"connect"}`)
	d.dispatchRaw(context.Background(), lifecycle)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if rt.SelfID() == 10001 && rt.Nickname() == "Kovi" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("identity never populated: self_id=%d nickname=%q", rt.SelfID(), rt.Nickname())
}

func TestDispatchAccessControlGatesGroupListener(t *testing.T) {
	outbound := make(chan correlate.Request, 4)
	rt := newTestRuntime(outbound, 0)

	p := plugin.New("demo")
	p.Policy.Mode = AccessWhitelist
	p.Policy.Groups[100] = struct{}{}

	b := plugin.NewBuilder(p, nil, rt)
	var mu sync.Mutex
	var delivered []int64
	b.OnGroupMsg(func(ctx context.Context, rt *runtime.Bot, e *event.GroupMsgEvent) {
		mu.Lock()
		delivered = append(delivered, e.GroupID)
		mu.Unlock()
	})

	d := NewDispatcher(rt, func() []*plugin.Plugin { return []*plugin.Plugin{p} }, nil)

	allowed := []byte(`{"time":1,"self_id":1,"post_type":"message","message_type":"group","group_id":100,"user_id":1,"message_id":1,"message":"hi"}`)
	denied := []byte(`{"time":1,"self_id":1,"post_type":"message","message_type":"group","group_id":101,"user_id":1,"message_id":2,"message":"hi"}`)
	private := []byte(`{"time":1,"self_id":1,"post_type":"message","message_type":"private","user_id":1,"message_id":3,"message":"hi"}`)

	d.dispatchRaw(context.Background(), allowed)
	d.dispatchRaw(context.Background(), denied)
	d.dispatchRaw(context.Background(), private)

	p.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 || delivered[0] != 100 {
		t.Fatalf("expected exactly one delivery for group 100, got %+v", delivered)
	}
}

func TestDispatchDisabledPluginGetsNoNewDispatch(t *testing.T) {
	outbound := make(chan correlate.Request, 4)
	rt := newTestRuntime(outbound, 0)

	p := plugin.New("demo")
	b := plugin.NewBuilder(p, nil, rt)

	var count atomic.Int32
	b.OnMsg(func(ctx context.Context, rt *runtime.Bot, e *event.MsgEvent) {
		count.Add(1)
	})

	p.Enable.Set(false)

	d := NewDispatcher(rt, func() []*plugin.Plugin { return []*plugin.Plugin{p} }, nil)
	raw := []byte(`{"time":1,"self_id":1,"post_type":"message","message_type":"private","user_id":1,"message_id":1,"message":"hi"}`)
	d.dispatchRaw(context.Background(), raw)

	p.Shutdown(context.Background())
	if count.Load() != 0 {
		t.Fatalf("expected no dispatch to a disabled plugin, got %d", count.Load())
	}
}

func TestDispatchAPIEventReachesMsgSendFromKoviListener(t *testing.T) {
	outbound := make(chan correlate.Request, 4)
	rt := newTestRuntime(outbound, 0)

	p := plugin.New("demo")
	b := plugin.NewBuilder(p, nil, rt)

	var mu sync.Mutex
	var got *event.MsgSendFromKoviEvent
	b.OnMsgSendFromKovi(func(ctx context.Context, rt *runtime.Bot, e *event.MsgSendFromKoviEvent) {
		mu.Lock()
		got = e
		mu.Unlock()
	})

	d := NewDispatcher(rt, func() []*plugin.Plugin { return []*plugin.Plugin{p} }, nil)
	d.dispatchAPI(context.Background(), bus.APIEventPayload{
		Action: "send_group_msg",
		Params: []byte(`{"group_id":100,"message":"hi"}`),
		Ok:     true,
	})

	p.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if got == nil || got.GroupID != 100 {
		t.Fatalf("got %+v", got)
	}
}
