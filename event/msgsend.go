package event

import "encoding/json"

// sendMsgActions is the set of action verbs that make an outgoing API
// call observable as a MsgSendFromKoviEvent, grounded on
// original_source/src/bot/event/msg_send_from_kovi_event.rs.
var sendMsgActions = map[string]struct{}{
	"send_msg":                 {},
	"send_group_msg":           {},
	"send_private_msg":         {},
	"send_group_forward_msg":   {},
	"send_private_forward_msg": {},
}

// APIEventSnapshot is the type-erased view of a OneBotApiEvent the
// dispatcher hands to decoders whose source is an outgoing API call
// rather than a server push. Mirrors bus.APIEventPayload without
// importing the bus package, the same way Raw mirrors the envelope.
type APIEventSnapshot struct {
	Action  string
	Params  json.RawMessage
	Echo    string
	Status  string
	Retcode int64
	Data    json.RawMessage
	Ok      bool
}

// APIEventDecoder converts an APIEventSnapshot into a typed value, or
// reports false ("not for me"), mirroring Decoder's contract for the
// server-push side.
type APIEventDecoder[T Event] func(snap APIEventSnapshot, dc DecodeContext) (T, bool)

// MsgSendFromKoviEvent is the framework-originated "message send"
// event: synthesized locally whenever an outgoing API call for one of
// the known send_*_msg verbs completes, so plugins can observe
// messages the bot itself sent. Distinct from MessageSentEvent, which
// is the server's own mirror of the same traffic.
type MsgSendFromKoviEvent struct {
	Action   string
	GroupID  int64 // 0 if not a group send
	UserID   int64 // 0 if not a private/individual send
	Message  json.RawMessage
	Ok       bool
	Retcode  int64
	Snapshot APIEventSnapshot
}

func (*MsgSendFromKoviEvent) Tag() string { return "message_send_from_kovi" }

type sendMsgParams struct {
	GroupID flexInt64       `json:"group_id"`
	UserID  flexInt64       `json:"user_id"`
	Message json.RawMessage `json:"message"`
}

// DecodeMsgSendFromKovi recognizes an APIEventSnapshot whose Action is
// one of the known send_*_msg verbs.
func DecodeMsgSendFromKovi(snap APIEventSnapshot, dc DecodeContext) (*MsgSendFromKoviEvent, bool) {
	if _, known := sendMsgActions[snap.Action]; !known {
		return nil, false
	}
	var p sendMsgParams
	_ = json.Unmarshal(snap.Params, &p) // best-effort; missing fields are fine

	return &MsgSendFromKoviEvent{
		Action:   snap.Action,
		GroupID:  int64(p.GroupID),
		UserID:   int64(p.UserID),
		Message:  p.Message,
		Ok:       snap.Ok,
		Retcode:  snap.Retcode,
		Snapshot: snap,
	}, true
}
