// Package message provides a minimal OneBot message content model: a
// sequence of segments (the machine-friendly structured form) plus a
// flattened human-readable string. A full CQ-string grammar and
// serializer is explicitly out of scope (spec.md §1: "the message/
// CQ-string content model ... an external serializer/parser"); this
// package implements just enough parsing to populate MsgEvent's two
// representations.
package message

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Segment is one piece of a structured message, e.g. {"type":"text",
// "data":{"text":"hi"}} or {"type":"at","data":{"qq":"10001"}}.
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Message is the structured, machine-friendly form: an ordered list of
// segments.
type Message []Segment

// Text returns a new plain-text segment.
func Text(s string) Segment {
	return Segment{Type: "text", Data: map[string]any{"text": s}}
}

// At returns a new @mention segment.
func At(userID int64) Segment {
	return Segment{Type: "at", Data: map[string]any{"qq": strconv.FormatInt(userID, 10)}}
}

// HumanString flattens the message into a single human-readable
// string: text segments pass through verbatim, "at" segments render
// as "@<id>", and any other segment type renders as "[CQ:<type>]" so
// nothing is silently dropped from the log line the dispatcher emits.
func (m Message) HumanString() string {
	var b strings.Builder
	for _, seg := range m {
		switch seg.Type {
		case "text":
			if s, ok := seg.Data["text"].(string); ok {
				b.WriteString(s)
			}
		case "at":
			if qq, ok := seg.Data["qq"]; ok {
				b.WriteString("@")
				b.WriteString(toStr(qq))
			}
		default:
			b.WriteString("[CQ:")
			b.WriteString(seg.Type)
			b.WriteString("]")
		}
	}
	return b.String()
}

func toStr(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// ParseContent decodes the "message" field of a OneBot event, which is
// either a CQ-string (plain string, possibly containing
// "[CQ:at,qq=N]"-style codes) or a segment array, and returns it as a
// segment list. Array form is preferred when present (it's the lossless one).
func ParseContent(raw json.RawMessage) Message {
	var segs []Segment
	if err := json.Unmarshal(raw, &segs); err == nil && segs != nil {
		return segs
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return parseCQString(s)
}

// parseCQString splits a CQ-code string into segments. Only the "at"
// code is recognized specially (the common case for access-control and
// group-trigger logic); any other "[CQ:...]" code becomes its own
// opaque segment so round-tripping HumanString still shows something.
func parseCQString(s string) Message {
	var out Message
	for len(s) > 0 {
		start := strings.Index(s, "[CQ:")
		if start < 0 {
			out = append(out, Text(s))
			break
		}
		if start > 0 {
			out = append(out, Text(s[:start]))
		}
		end := strings.Index(s[start:], "]")
		if end < 0 {
			out = append(out, Text(s[start:]))
			break
		}
		end += start
		code := s[start+len("[CQ:") : end]
		out = append(out, parseCQCode(code))
		s = s[end+1:]
	}
	return out
}

func parseCQCode(code string) Segment {
	parts := strings.SplitN(code, ",", 2)
	typ := parts[0]
	data := map[string]any{}
	if len(parts) == 2 {
		for _, kv := range strings.Split(parts[1], ",") {
			if i := strings.Index(kv, "="); i >= 0 {
				data[kv[:i]] = kv[i+1:]
			}
		}
	}
	if typ == "at" {
		if qq, ok := data["qq"].(string); ok {
			if id, err := strconv.ParseInt(qq, 10, 64); err == nil {
				return At(id)
			}
		}
	}
	return Segment{Type: typ, Data: data}
}
