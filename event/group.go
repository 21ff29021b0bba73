package event

// APISender is the minimal capability message events need for their
// reply convenience methods. runtime.Bot satisfies this structurally;
// event does not import the runtime package to avoid a cycle.
type APISender interface {
	SendAPI(action string, params map[string]any)
}

// GroupMsgEvent is a message event whose discriminant is
// message_type=="group" together with a non-zero group_id.
type GroupMsgEvent struct {
	*MsgEvent
}

func (*GroupMsgEvent) Tag() string { return "group_message" }

// DecodeGroupMsg decodes the umbrella message event and enforces the
// group discriminant: message_type=="group" and a non-zero group_id.
func DecodeGroupMsg(raw *Raw, dc DecodeContext) (*GroupMsgEvent, bool) {
	m, ok := DecodeMsg(raw, dc)
	if !ok || m.MessageType != "group" || m.GroupID == 0 {
		return nil, false
	}
	return &GroupMsgEvent{m}, true
}

// Reply sends text back to the same group, fire-and-forget.
func (e *GroupMsgEvent) Reply(rt APISender, text string) {
	rt.SendAPI("send_group_msg", map[string]any{"group_id": e.GroupID, "message": text})
}

// ReplyAndQuote sends text back to the same group, quoting the
// triggering message.
func (e *GroupMsgEvent) ReplyAndQuote(rt APISender, text string) {
	rt.SendAPI("send_group_msg", map[string]any{
		"group_id": e.GroupID,
		"message":  []map[string]any{{"type": "reply", "data": map[string]any{"id": e.MessageID}}, {"type": "text", "data": map[string]any{"text": text}}},
	})
}
