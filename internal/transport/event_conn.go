package transport

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"

	"github.com/kovi-go/kovi/internal/bus"
)

// readEventLoop reads text frames off the /event socket and forwards
// each as a raw OneBotEvent onto the bus, preserving arrival order.
// Non-text frames are ignored except close, which is a transport
// failure that triggers shutdown.
func (t *Transport) readEventLoop() {
	for {
		msgType, data, err := t.eventConn.ReadMessage()
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

		e := bus.InternalEvent{Kind: bus.KindOneBotEvent, Raw: append([]byte(nil), data...)}
		if err := t.bus.Publish(context.Background(), e); err != nil {
			return
		}
	}
}

func isExpectedClose(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway
	}
	return false
}
