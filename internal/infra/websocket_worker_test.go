package infra

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingHandler struct {
	url            string
	onConnectCalls int32
	onMessageCalls int32
}

func (h *recordingHandler) ID() string     { return "TEST" }
func (h *recordingHandler) GetURL() string { return h.url }
func (h *recordingHandler) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	atomic.AddInt32(&h.onConnectCalls, 1)
	return nil
}
func (h *recordingHandler) OnMessage(ctx context.Context, msg []byte) {
	atomic.AddInt32(&h.onMessageCalls, 1)
}
func (h *recordingHandler) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return nil
}

func wsServer(t *testing.T, serve func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWSWorker_ReceivesMessages(t *testing.T) {
	server := wsServer(t, func(conn *websocket.Conn) {
		for i := 0; i < 3; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"n":1}`)); err != nil {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	h := &recordingHandler{url: wsURL(server)}
	w := NewWSWorker(h)
	w.PingInterval = 0 // no ping during test

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&h.onMessageCalls) < 3 {
		select {
		case <-deadline:
			t.Fatalf("received %d messages, want 3", atomic.LoadInt32(&h.onMessageCalls))
		case <-time.After(10 * time.Millisecond):
		}
	}

	w.Stop()
}

func TestWSWorker_ReconnectsAfterDrop(t *testing.T) {
	server := wsServer(t, func(conn *websocket.Conn) {
		// Drop immediately; worker should dial again.
	})
	defer server.Close()

	h := &recordingHandler{url: wsURL(server)}
	w := NewWSWorker(h)
	w.PingInterval = 0
	w.retry = RetryPolicy{BaseDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&h.onConnectCalls) < 2 {
		select {
		case <-deadline:
			t.Fatalf("connected %d times, want at least 2", atomic.LoadInt32(&h.onConnectCalls))
		case <-time.After(10 * time.Millisecond):
		}
	}

	w.Stop()
}
