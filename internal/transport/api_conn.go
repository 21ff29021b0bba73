package transport

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/kovi-go/kovi/internal/correlate"
)

// apiResponseWire is the wire shape of a server-to-client API reply.
type apiResponseWire struct {
	Status  string          `json:"status"`
	Retcode int64           `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Echo    string          `json:"echo"`
}

// readAPILoop reads reply frames off the /api socket and resolves them
// through the correlator. Unparsable frames are a protocol-soft
// failure: log and drop, never fatal.
func (t *Transport) readAPILoop() {
	for {
		msgType, data, err := t.apiConn.ReadMessage()
		if err != nil {
			if isExpectedClose(err) {
				t.drop(nil)
			} else {
				t.drop(err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var wire apiResponseWire
		if err := json.Unmarshal(data, &wire); err != nil {
			t.logger.Error("unparsable api response, dropping", "error", err)
			continue
		}

		t.correlator.Resolve(correlate.Response{
			Status:  wire.Status,
			Retcode: wire.Retcode,
			Data:    wire.Data,
			Echo:    wire.Echo,
		})
	}
}

// apiRequestWire is the wire shape of a client-to-server API call.
type apiRequestWire struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
	Echo   string          `json:"echo"`
}

// writeAPILoop drains the outbound queue in order and writes frames to
// the /api socket. Requests are registered with the correlator before
// the frame is written — never after — so a reply can never race a
// not-yet-inserted map entry.
func (t *Transport) writeAPILoop() {
	for {
		select {
		case req, ok := <-t.outbound:
			if !ok {
				return
			}
			t.writeOne(req)
		case <-t.dropCh:
			return
		}
	}
}

func (t *Transport) writeOne(req correlate.Request) {
	t.correlator.Register(req)

	frame, err := json.Marshal(apiRequestWire{Action: req.Action, Params: req.Params, Echo: req.Echo})
	if err != nil {
		t.correlator.Forget(req.Echo)
		t.logger.Error("failed to marshal api request", "action", req.Action, "error", err)
		return
	}

	if err := t.apiConn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.correlator.Forget(req.Echo)
		t.drop(err)
	}
}
