package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ticket_engine/internal/logbus"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestReplayFiltersByType(t *testing.T) {
	bus := logbus.New(20)
	bus.Log("info", "hello", nil)
	bus.Publish("worker_state", map[string]any{"accountId": "1", "phase": "waiting_room"})

	srv := httptest.NewServer(NewHandler(bus, nil))
	defer srv.Close()

	conn := dial(t, srv, "?types=worker_state")
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg["type"] != "worker_state" {
		t.Fatalf("msg=%v", msg)
	}
}

func TestLiveMessagesFilteredByAccount(t *testing.T) {
	bus := logbus.New(20)
	srv := httptest.NewServer(NewHandler(bus, nil))
	defer srv.Close()

	conn := dial(t, srv, "?types=log&accountId=2")

	// 握手返回时订阅未必已建立，持续发布直到读到目标消息。
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				bus.Publish("log", logbus.LogData{Level: "info", AccountID: "1", Msg: "other"})
				bus.Publish("log", logbus.LogData{Level: "info", AccountID: "2", Msg: "mine"})
			}
		}
	}()

	var msg struct {
		Type string         `json:"type"`
		Data logbus.LogData `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "log" || msg.Data.AccountID != "2" || msg.Data.Msg != "mine" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestCheckOrigin(t *testing.T) {
	h := NewHandler(logbus.New(1), []string{"http://ok.test"})
	cases := map[string]bool{"": true, "http://ok.test": true, "HTTP://OK.TEST": true, "http://evil.test": false}
	for origin, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := h.checkOrigin(r); got != want {
			t.Fatalf("checkOrigin(%q)=%v want %v", origin, got, want)
		}
	}
}
