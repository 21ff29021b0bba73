package event

import (
	"encoding/json"

	"github.com/kovi-go/kovi/message"
)

// Sender is the common sender-info sub-object OneBot attaches to
// message events.
type Sender struct {
	UserID   int64  `json:"-"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
}

// MsgEvent is the umbrella message event: any inbound message,
// private or group. It carries both the structured message (Message)
// and a flattened human-readable string (RawText), per spec §4.4's
// last paragraph. Specialized variants (Private/Group/Admin) project
// the same parse and enforce their own discriminant.
type MsgEvent struct {
	Time        int64
	SelfID      int64
	MessageID   int64
	UserID      int64
	GroupID     int64 // 0 for private messages
	MessageType string
	Message     message.Message
	RawText     string
	Sender      Sender
	Original    json.RawMessage
}

func (*MsgEvent) Tag() string { return "message" }

// Reply sends text back on the channel the message arrived on (group
// or private), fire-and-forget. Specialized variants promote this
// through embedding unless they define a narrower one.
func (e *MsgEvent) Reply(rt APISender, text string) {
	if e.GroupID != 0 {
		rt.SendAPI("send_group_msg", map[string]any{"group_id": e.GroupID, "message": text})
		return
	}
	rt.SendAPI("send_private_msg", map[string]any{"user_id": e.UserID, "message": text})
}

type messageWire struct {
	MessageID   flexInt64       `json:"message_id"`
	UserID      flexInt64       `json:"user_id"`
	GroupID     flexInt64       `json:"group_id"`
	MessageType string          `json:"message_type"`
	Message     json.RawMessage `json:"message"`
	Sender      struct {
		UserID   flexInt64 `json:"user_id"`
		Nickname string    `json:"nickname"`
		Card     string    `json:"card"`
	} `json:"sender"`
}

// DecodeMsg recognizes any post_type=="message" event. Field errors on
// the message-specific shape are "not for me", per spec's decoder
// taxonomy.
func DecodeMsg(raw *Raw, dc DecodeContext) (*MsgEvent, bool) {
	if raw.PostType != PostTypeMessage {
		return nil, false
	}
	var wire messageWire
	if err := json.Unmarshal(raw.Bytes, &wire); err != nil {
		return nil, false
	}
	m := message.ParseContent(wire.Message)
	return &MsgEvent{
		Time:        raw.Time,
		SelfID:      raw.SelfID,
		MessageID:   int64(wire.MessageID),
		UserID:      int64(wire.UserID),
		GroupID:     int64(wire.GroupID),
		MessageType: wire.MessageType,
		Message:     m,
		RawText:     m.HumanString(),
		Sender: Sender{
			UserID:   int64(wire.Sender.UserID),
			Nickname: wire.Sender.Nickname,
			Card:     wire.Sender.Card,
		},
		Original: raw.Bytes,
	}, true
}
