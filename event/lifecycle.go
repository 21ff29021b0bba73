package event

import "encoding/json"

// LifecycleAction is the meta_event sub_type for a lifecycle event.
type LifecycleAction string

const (
	LifecycleConnect LifecycleAction = "connect"
	LifecycleEnable  LifecycleAction = "enable"
	LifecycleDisable LifecycleAction = "disable"
)

// LifecycleEvent announces a connection/enable/disable transition for
// the upstream OneBot account.
type LifecycleEvent struct {
	Time     int64
	SelfID   int64
	Action   LifecycleAction
	Original json.RawMessage
}

func (*LifecycleEvent) Tag() string { return "lifecycle" }

type lifecycleWire struct {
	MetaEventType string `json:"meta_event_type"`
	SubType       string `json:"sub_type"`
}

// DecodeLifecycle recognizes post_type=="meta_event" with
// meta_event_type=="lifecycle". The dispatcher decodes this
// unconditionally (spec §4.4 item 2) to drive the self-identity fetch.
func DecodeLifecycle(raw *Raw, dc DecodeContext) (*LifecycleEvent, bool) {
	if raw.PostType != PostTypeMetaEvent {
		return nil, false
	}
	var wire lifecycleWire
	if err := json.Unmarshal(raw.Bytes, &wire); err != nil {
		return nil, false
	}
	if wire.MetaEventType != "lifecycle" {
		return nil, false
	}
	return &LifecycleEvent{
		Time:     raw.Time,
		SelfID:   raw.SelfID,
		Action:   LifecycleAction(wire.SubType),
		Original: raw.Bytes,
	}, true
}

// MessageSentEvent is the server-observed mirror of an outgoing
// message, delivered via post_type=="message_sent" (a go-cqhttp-style
// extension some OneBot implementations send). Distinct from
// MsgSendFromKoviEvent, which is synthesized locally from the
// framework's own outgoing API calls rather than pushed by the server.
type MessageSentEvent struct {
	*MsgEvent
}

func (*MessageSentEvent) Tag() string { return "message_sent" }

// DecodeMessageSent recognizes post_type=="message_sent" events,
// reusing the umbrella message parse (the wire shape is identical to
// a regular message event, just pushed under a different post_type).
func DecodeMessageSent(raw *Raw, dc DecodeContext) (*MessageSentEvent, bool) {
	if raw.PostType != PostTypeMessageSent {
		return nil, false
	}
	asMessage := *raw
	asMessage.PostType = PostTypeMessage
	m, ok := DecodeMsg(&asMessage, dc)
	if !ok {
		return nil, false
	}
	return &MessageSentEvent{m}, true
}
