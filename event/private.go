package event

// PrivateMsgEvent is a message event whose discriminant is
// message_type=="private" (no group_id).
type PrivateMsgEvent struct {
	*MsgEvent
}

func (*PrivateMsgEvent) Tag() string { return "private_message" }

// DecodePrivateMsg decodes the umbrella message event and enforces the
// private discriminant.
func DecodePrivateMsg(raw *Raw, dc DecodeContext) (*PrivateMsgEvent, bool) {
	m, ok := DecodeMsg(raw, dc)
	if !ok || m.MessageType != "private" {
		return nil, false
	}
	return &PrivateMsgEvent{m}, true
}

// Reply sends text back to the sender, fire-and-forget.
func (e *PrivateMsgEvent) Reply(rt APISender, text string) {
	rt.SendAPI("send_private_msg", map[string]any{"user_id": e.UserID, "message": text})
}

// AdminMsgEvent is a message event whose sender is the configured main
// or deputy admin, regardless of private/group origin.
type AdminMsgEvent struct {
	*MsgEvent
}

func (*AdminMsgEvent) Tag() string { return "admin_message" }

// DecodeAdminMsg decodes the umbrella message event and enforces the
// admin discriminant: the top-level user_id must be the main admin or
// a deputy admin.
func DecodeAdminMsg(raw *Raw, dc DecodeContext) (*AdminMsgEvent, bool) {
	m, ok := DecodeMsg(raw, dc)
	if !ok || !dc.IsAdmin(m.UserID) {
		return nil, false
	}
	return &AdminMsgEvent{m}, true
}

