// Package event defines the built-in OneBot event variants and the
// typed-decoder machinery the dispatcher uses to demultiplex inbound
// JSON without reflection: each variant is a tagged value behind a
// common Event capability, and its Decoder either recognizes the raw
// shape or reports "not for me" — never an error, per spec's decoder
// taxonomy (field errors and shape mismatches are both "not for me").
package event

import (
	"encoding/json"
)

// PostType is the OneBot v11 top-level event discriminant.
type PostType string

const (
	PostTypeMessage     PostType = "message"
	PostTypeNotice      PostType = "notice"
	PostTypeRequest     PostType = "request"
	PostTypeMetaEvent   PostType = "meta_event"
	PostTypeMessageSent PostType = "message_sent"
)

// Raw is the parsed common envelope of an inbound OneBot event, plus
// the original bytes for variant-specific decoders to re-parse.
type Raw struct {
	Bytes    json.RawMessage
	Time     int64
	SelfID   int64
	PostType PostType
}

type envelope struct {
	Time     int64  `json:"time"`
	SelfID   int64  `json:"self_id"`
	PostType string `json:"post_type"`
}

// ParseRaw extracts the common envelope fields from a server-pushed
// event frame. A parse failure here is protocol-soft: the caller logs
// and drops the frame rather than treating it as fatal.
func ParseRaw(data []byte) (*Raw, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &Raw{
		Bytes:    append(json.RawMessage(nil), data...),
		Time:     env.Time,
		SelfID:   env.SelfID,
		PostType: PostType(env.PostType),
	}, nil
}

// DecodeContext carries the bot state a decoder needs to resolve
// discriminants it can't get from the raw JSON alone (the configured
// admin ids; the bot's own identity once known).
type DecodeContext struct {
	SelfID         int64
	Nickname       string
	AdminID        int64
	DeputyAdminIDs []int64
}

// IsAdmin reports whether userID is the main admin or a deputy admin.
func (dc DecodeContext) IsAdmin(userID int64) bool {
	if userID == dc.AdminID {
		return true
	}
	for _, id := range dc.DeputyAdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Event is the capability every decodable variant implements: a
// stable type tag the dispatcher's per-event cache is keyed on.
type Event interface {
	Tag() string
}

// Decoder converts a Raw event into a typed value, or reports false
// ("not for me") when the shape doesn't match. Never returns an error:
// a field that doesn't parse is just another reason to say "not for me".
type Decoder[T Event] func(raw *Raw, dc DecodeContext) (T, bool)

// ErasedDecoder is the type-erased form the dispatcher's cache stores
// internally, so listeners of different concrete types can share one
// cache entry per tag without reflection.
type ErasedDecoder func(raw *Raw, dc DecodeContext) (any, bool)

// Erase adapts a typed Decoder to the type-erased form the dispatcher
// keys its per-event cache with.
func Erase[T Event](d Decoder[T]) ErasedDecoder {
	return func(raw *Raw, dc DecodeContext) (any, bool) {
		v, ok := d(raw, dc)
		if !ok {
			return nil, false
		}
		return v, true
	}
}

// EraseAPI adapts a typed APIEventDecoder to the type-erased form the
// dispatcher's cache uses for the API-event path, mirroring Erase.
func EraseAPI[T Event](d APIEventDecoder[T]) func(snap APIEventSnapshot, dc DecodeContext) (any, bool) {
	return func(snap APIEventSnapshot, dc DecodeContext) (any, bool) {
		v, ok := d(snap, dc)
		if !ok {
			return nil, false
		}
		return v, true
	}
}

// TagOf returns the stable tag for a built-in or user-defined type T by
// asking the zero value to name itself. User-defined event types plug
// into the same registry through this interface.
func TagOf[T Event]() string {
	var zero T
	return zero.Tag()
}
