package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kovi-go/kovi/internal/bus"
	"github.com/kovi-go/kovi/internal/correlate"
)

func TestWSURLScheme(t *testing.T) {
	tr := New(Server{Host: "example.com", Port: 8080}, bus.New(1), nil, 1)
	if got := tr.wsURL("/event"); got != "ws://example.com:8080/event" {
		t.Fatalf("got %s", got)
	}

	trTLS := New(Server{Host: "example.com", Port: 443, TLS: true}, bus.New(1), nil, 1)
	if got := trTLS.wsURL("/api"); got != "wss://example.com:443/api" {
		t.Fatalf("got %s", got)
	}
}

func TestAuthHeaderOmittedWithoutToken(t *testing.T) {
	tr := New(Server{Host: "h", Port: 1}, bus.New(1), nil, 1)
	if h := tr.authHeader(); h != nil {
		t.Fatalf("expected nil header without a token, got %v", h)
	}
}

func TestAuthHeaderBearer(t *testing.T) {
	tr := New(Server{Host: "h", Port: 1, Token: "secret"}, bus.New(1), nil, 1)
	h := tr.authHeader()
	if got := h.Get("Authorization"); got != "Bearer secret" {
		t.Fatalf("got %q", got)
	}
}

// fakeServer runs two WebSocket endpoints standing in for the OneBot
// server's /event and /api paths. /event records the Authorization
// header of its upgrade and sends nothing; /api replies to requests.
type fakeServer struct {
	srv           *httptest.Server
	sawAuthHeader string
	apiReplies    chan apiRequestWire
}

func newFakeServer(t *testing.T) *fakeServer {
	fs := &fakeServer{apiReplies: make(chan apiRequestWire, 8)}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/event", func(w http.ResponseWriter, r *http.Request) {
		fs.sawAuthHeader = r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-make(chan struct{}) // keep open until the test ends
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req apiRequestWire
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			fs.apiReplies <- req
			reply := apiResponseWire{Status: "ok", Retcode: 0, Echo: req.Echo}
			b, _ := json.Marshal(reply)
			_ = conn.WriteMessage(websocket.TextMessage, b)
		}
	})
	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func TestStartDialsBothSocketsAndRoundTrips(t *testing.T) {
	fs := newFakeServer(t)
	host := strings.TrimPrefix(fs.srv.URL, "http://")
	hostPart := host
	var port int
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		hostPart = host[:idx]
		p := host[idx+1:]
		for _, c := range p {
			port = port*10 + int(c-'0')
		}
	}

	b := bus.New(8)
	tr := New(Server{Host: hostPart, Port: port}, b, nil, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Close()

	sink := make(correlate.Sink, 1)
	echo := tr.NewEcho()
	tr.Outbound() <- correlate.Request{Action: "get_login_info", Echo: echo, Sink: sink}

	select {
	case r := <-sink:
		if r.Err != nil {
			t.Fatalf("unexpected domain error: %v", r.Err)
		}
		if r.Response.Echo != echo {
			t.Fatalf("echo mismatch: got %s want %s", r.Response.Echo, echo)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for round trip")
	}
}
