package plugin

import (
	"context"

	"github.com/kovi-go/kovi/event"
	"github.com/kovi-go/kovi/runtime"
)

// Listener is the triple (event-type-tag, decoder, handler) of spec
// §3, erased to `any` so a Plugin's listener list can be
// homogeneous regardless of which concrete event type each one
// subscribes to. Exactly one of DecodeRaw/DecodeAPI is set, depending
// on whether the listener's event originates from a server push or
// from a synthesized OneBotApiEvent.
type Listener struct {
	Tag       string
	IsMessage bool // gates access-control application (message events only)
	DecodeRaw event.ErasedDecoder
	DecodeAPI func(snap event.APIEventSnapshot, dc event.DecodeContext) (any, bool)
	Handle    func(ctx context.Context, rt *runtime.Bot, val any)
}

func wrapDecode[T event.Event](d event.Decoder[T]) event.ErasedDecoder {
	return event.Erase(d)
}

func wrapAPIDecode[T event.Event](d event.APIEventDecoder[T]) func(snap event.APIEventSnapshot, dc event.DecodeContext) (any, bool) {
	return event.EraseAPI(d)
}

func wrapHandler[T event.Event](h func(ctx context.Context, rt *runtime.Bot, evt T)) func(ctx context.Context, rt *runtime.Bot, val any) {
	return func(ctx context.Context, rt *runtime.Bot, val any) {
		h(ctx, rt, val.(T))
	}
}
