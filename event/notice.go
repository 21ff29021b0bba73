package event

import "encoding/json"

// NoticeEvent covers OneBot's notice post_type (group member changes,
// friend adds, pokes, etc). Kept deliberately shallow — NoticeType
// plus the original bytes, mirroring the original's manual-extraction
// NoticeEvent rather than a fully-typed-per-subtype model.
type NoticeEvent struct {
	Time       int64
	SelfID     int64
	NoticeType string
	Original   json.RawMessage
}

func (*NoticeEvent) Tag() string { return "notice" }

type noticeWire struct {
	NoticeType string `json:"notice_type"`
}

// DecodeNotice recognizes any post_type=="notice" event.
func DecodeNotice(raw *Raw, dc DecodeContext) (*NoticeEvent, bool) {
	if raw.PostType != PostTypeNotice {
		return nil, false
	}
	var wire noticeWire
	if err := json.Unmarshal(raw.Bytes, &wire); err != nil {
		return nil, false
	}
	return &NoticeEvent{
		Time:       raw.Time,
		SelfID:     raw.SelfID,
		NoticeType: wire.NoticeType,
		Original:   raw.Bytes,
	}, true
}

// RequestEvent covers OneBot's request post_type (friend requests,
// group invites).
type RequestEvent struct {
	Time        int64
	SelfID      int64
	RequestType string
	Flag        string
	UserID      int64
	Comment     string
	Original    json.RawMessage
}

func (*RequestEvent) Tag() string { return "request" }

type requestWire struct {
	RequestType string    `json:"request_type"`
	Flag        string    `json:"flag"`
	UserID      flexInt64 `json:"user_id"`
	Comment     string    `json:"comment"`
}

// DecodeRequest recognizes any post_type=="request" event.
func DecodeRequest(raw *Raw, dc DecodeContext) (*RequestEvent, bool) {
	if raw.PostType != PostTypeRequest {
		return nil, false
	}
	var wire requestWire
	if err := json.Unmarshal(raw.Bytes, &wire); err != nil {
		return nil, false
	}
	return &RequestEvent{
		Time:        raw.Time,
		SelfID:      raw.SelfID,
		RequestType: wire.RequestType,
		Flag:        wire.Flag,
		UserID:      int64(wire.UserID),
		Comment:     wire.Comment,
		Original:    raw.Bytes,
	}, true
}
