package message

import (
	"encoding/json"
	"testing"
)

func TestParseContentSegmentArray(t *testing.T) {
	raw := json.RawMessage(`[{"type":"text","data":{"text":"hi "}},{"type":"at","data":{"qq":"100"}}]`)
	m := ParseContent(raw)
	if len(m) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(m))
	}
	if got := m.HumanString(); got != "hi @100" {
		t.Fatalf("got %q", got)
	}
}

func TestParseContentCQString(t *testing.T) {
	raw := json.RawMessage(`"hello [CQ:at,qq=100] world"`)
	m := ParseContent(raw)
	if got := m.HumanString(); got != "hello @100 world" {
		t.Fatalf("got %q", got)
	}
}

func TestParseContentUnknownCQCode(t *testing.T) {
	raw := json.RawMessage(`"look [CQ:image,file=a.png] here"`)
	m := ParseContent(raw)
	if got := m.HumanString(); got != "look [CQ:image] here" {
		t.Fatalf("got %q", got)
	}
}
