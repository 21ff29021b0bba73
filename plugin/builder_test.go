package plugin

import (
	"context"
	"testing"

	"github.com/kovi-go/kovi/event"
	"github.com/kovi-go/kovi/runtime"
	"github.com/kovi-go/kovi/scheduler"
)

func TestBuilderOnGroupMsgRegistersListener(t *testing.T) {
	p := New("demo")
	b := NewBuilder(p, scheduler.New(nil), nil)

	var got *event.GroupMsgEvent
	b.OnGroupMsg(func(ctx context.Context, rt *runtime.Bot, e *event.GroupMsgEvent) {
		got = e
	})

	listeners := p.Listeners()
	if len(listeners) != 1 || listeners[0].Tag != event.TagOf[*event.GroupMsgEvent]() {
		t.Fatalf("expected one group-message listener, got %+v", listeners)
	}
	if !listeners[0].IsMessage {
		t.Fatal("group message listener must be access-control gated")
	}

	raw, err := event.ParseRaw([]byte(`{"time":1,"self_id":1,"post_type":"message","message_type":"group","group_id":5,"user_id":9,"message_id":1,"message":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	val, ok := listeners[0].DecodeRaw(raw, event.DecodeContext{})
	if !ok {
		t.Fatal("expected the decode to succeed")
	}
	listeners[0].Handle(context.Background(), nil, val)
	if got == nil || got.GroupID != 5 {
		t.Fatalf("handler did not receive the decoded event: %+v", got)
	}
}

func TestBuilderCronPropagatesParseError(t *testing.T) {
	p := New("demo")
	b := NewBuilder(p, scheduler.New(nil), nil)

	if err := b.Cron("not a cron expression", func(context.Context, *runtime.Bot) {}); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestBuilderOnDropAppendsHook(t *testing.T) {
	p := New("demo")
	b := NewBuilder(p, scheduler.New(nil), nil)

	ran := false
	b.OnDrop(func(context.Context) { ran = true })
	p.Shutdown(context.Background())
	if !ran {
		t.Fatal("expected drop hook to run on shutdown")
	}
}

func TestGenericOnRegistersUserDefinedType(t *testing.T) {
	p := New("demo")
	b := NewBuilder(p, scheduler.New(nil), nil)

	decode := func(raw *event.Raw, dc event.DecodeContext) (*event.NoticeEvent, bool) {
		return event.DecodeNotice(raw, dc)
	}
	var got *event.NoticeEvent
	On(b, decode, false, func(ctx context.Context, rt *runtime.Bot, e *event.NoticeEvent) {
		got = e
	})

	listeners := p.Listeners()
	if len(listeners) != 1 {
		t.Fatalf("expected one listener, got %d", len(listeners))
	}

	raw, err := event.ParseRaw([]byte(`{"time":1,"self_id":1,"post_type":"notice","notice_type":"group_increase"}`))
	if err != nil {
		t.Fatal(err)
	}
	val, ok := listeners[0].DecodeRaw(raw, event.DecodeContext{})
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	listeners[0].Handle(context.Background(), nil, val)
	if got == nil || got.NoticeType != "group_increase" {
		t.Fatalf("got %+v", got)
	}
}
