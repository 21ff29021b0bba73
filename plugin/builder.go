package plugin

import (
	"context"
	"fmt"

	"github.com/kovi-go/kovi/event"
	"github.com/kovi-go/kovi/runtime"
	"github.com/kovi-go/kovi/scheduler"
)

// Builder carries the ambient "current plugin" state for one
// registration build phase. Rather than free functions reading
// task-local state (spec's Rust original uses tokio::task_local!),
// every registration call here is a method on *Builder: the caller's
// own build function receives the *Builder as a parameter, so there
// is no hidden ambient lookup and no possibility of calling a
// registration method without one in hand. See DESIGN.md.
type Builder struct {
	plugin *Plugin
	sched  *scheduler.Scheduler
	rt     *runtime.Bot

	cronSeq int
}

// NewBuilder constructs the Builder passed to a plugin's build
// function. sched and rt are shared across all plugins registered on
// the same bot.
func NewBuilder(p *Plugin, sched *scheduler.Scheduler, rt *runtime.Bot) *Builder {
	return &Builder{plugin: p, sched: sched, rt: rt}
}

// Plugin returns the Plugin this Builder is registering listeners
// for.
func (b *Builder) Plugin() *Plugin { return b.plugin }

// SetAccessPolicy replaces the plugin's access-control policy.
func (b *Builder) SetAccessPolicy(policy *AccessPolicy) { b.plugin.Policy = policy }

// OnMsg registers a listener for the umbrella Message event.
func (b *Builder) OnMsg(handler func(ctx context.Context, rt *runtime.Bot, e *event.MsgEvent)) {
	b.plugin.addListener(&Listener{
		Tag:       event.TagOf[*event.MsgEvent](),
		IsMessage: true,
		DecodeRaw: wrapDecode(event.DecodeMsg),
		Handle:    wrapHandler(handler),
	})
}

// OnGroupMsg registers a listener for group messages only.
func (b *Builder) OnGroupMsg(handler func(ctx context.Context, rt *runtime.Bot, e *event.GroupMsgEvent)) {
	b.plugin.addListener(&Listener{
		Tag:       event.TagOf[*event.GroupMsgEvent](),
		IsMessage: true,
		DecodeRaw: wrapDecode(event.DecodeGroupMsg),
		Handle:    wrapHandler(handler),
	})
}

// OnPrivateMsg registers a listener for private messages only.
func (b *Builder) OnPrivateMsg(handler func(ctx context.Context, rt *runtime.Bot, e *event.PrivateMsgEvent)) {
	b.plugin.addListener(&Listener{
		Tag:       event.TagOf[*event.PrivateMsgEvent](),
		IsMessage: true,
		DecodeRaw: wrapDecode(event.DecodePrivateMsg),
		Handle:    wrapHandler(handler),
	})
}

// OnAdminMsg registers a listener for messages from the configured
// main or deputy admin, regardless of origin.
func (b *Builder) OnAdminMsg(handler func(ctx context.Context, rt *runtime.Bot, e *event.AdminMsgEvent)) {
	b.plugin.addListener(&Listener{
		Tag:       event.TagOf[*event.AdminMsgEvent](),
		IsMessage: true,
		DecodeRaw: wrapDecode(event.DecodeAdminMsg),
		Handle:    wrapHandler(handler),
	})
}

// OnMessageSent registers a listener for the server's own mirror of
// outgoing messages (post_type=="message_sent").
func (b *Builder) OnMessageSent(handler func(ctx context.Context, rt *runtime.Bot, e *event.MessageSentEvent)) {
	b.plugin.addListener(&Listener{
		Tag:       event.TagOf[*event.MessageSentEvent](),
		IsMessage: true,
		DecodeRaw: wrapDecode(event.DecodeMessageSent),
		Handle:    wrapHandler(handler),
	})
}

// OnNotice registers a listener for notice events.
func (b *Builder) OnNotice(handler func(ctx context.Context, rt *runtime.Bot, e *event.NoticeEvent)) {
	b.plugin.addListener(&Listener{
		Tag:       event.TagOf[*event.NoticeEvent](),
		DecodeRaw: wrapDecode(event.DecodeNotice),
		Handle:    wrapHandler(handler),
	})
}

// OnRequest registers a listener for request events.
func (b *Builder) OnRequest(handler func(ctx context.Context, rt *runtime.Bot, e *event.RequestEvent)) {
	b.plugin.addListener(&Listener{
		Tag:       event.TagOf[*event.RequestEvent](),
		DecodeRaw: wrapDecode(event.DecodeRequest),
		Handle:    wrapHandler(handler),
	})
}

// OnLifecycle registers a listener for lifecycle meta-events. The
// dispatcher decodes Lifecycle unconditionally for its own
// self-identity bookkeeping (spec §4.4 item 2); this registers a
// plugin-visible listener on the same cached decode.
func (b *Builder) OnLifecycle(handler func(ctx context.Context, rt *runtime.Bot, e *event.LifecycleEvent)) {
	b.plugin.addListener(&Listener{
		Tag:       event.TagOf[*event.LifecycleEvent](),
		DecodeRaw: wrapDecode(event.DecodeLifecycle),
		Handle:    wrapHandler(handler),
	})
}

// OnMsgSendFromKovi registers a listener for the framework-originated
// "message send" event, synthesized from the bot's own outgoing API
// calls rather than pushed by the server.
func (b *Builder) OnMsgSendFromKovi(handler func(ctx context.Context, rt *runtime.Bot, e *event.MsgSendFromKoviEvent)) {
	b.plugin.addListener(&Listener{
		Tag:       event.TagOf[*event.MsgSendFromKoviEvent](),
		DecodeAPI: wrapAPIDecode(event.DecodeMsgSendFromKovi),
		Handle:    wrapHandler(handler),
	})
}

// OnDrop registers a shutdown hook, run exactly once in registration
// order after all of the plugin's listener tasks have been cancelled.
func (b *Builder) OnDrop(hook func(ctx context.Context)) {
	b.plugin.addDropHook(hook)
}

// Cron registers a cron task in the plugin's scope. expr may carry an
// optional leading seconds field. A parse error is returned
// immediately and no task is started, per spec §4.6.
func (b *Builder) Cron(expr string, handler func(ctx context.Context, rt *runtime.Bot)) error {
	b.cronSeq++
	name := fmt.Sprintf("%s#cron#%d", b.plugin.Name, b.cronSeq)
	task, err := b.sched.Register(name, expr, b.plugin.Enable, func(ctx context.Context) {
		done, _, ok := b.plugin.BeginTask()
		if !ok {
			return
		}
		defer done()
		handler(ctx, b.rt)
	})
	if err != nil {
		return err
	}
	b.plugin.addCronTask(task)
	return nil
}

// On registers a listener for a user-defined event type decoded from
// a server push. Exposed as a free function, not a *Builder method,
// because Go methods cannot carry their own type parameters; T is
// inferred from decode.
func On[T event.Event](b *Builder, decode event.Decoder[T], isMessage bool, handler func(ctx context.Context, rt *runtime.Bot, evt T)) {
	b.plugin.addListener(&Listener{
		Tag:       event.TagOf[T](),
		IsMessage: isMessage,
		DecodeRaw: wrapDecode(decode),
		Handle:    wrapHandler(handler),
	})
}

// OnAPI registers a listener for a user-defined event type decoded
// from a synthesized OneBotApiEvent rather than a server push. See On
// for why this is a free function.
func OnAPI[T event.Event](b *Builder, decode event.APIEventDecoder[T], handler func(ctx context.Context, rt *runtime.Bot, evt T)) {
	b.plugin.addListener(&Listener{
		Tag:       event.TagOf[T](),
		DecodeAPI: wrapAPIDecode(decode),
		Handle:    wrapHandler(handler),
	})
}
