package realtime

import (
	"context"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"booksaga/internal/fulfillment"

	"github.com/gorilla/websocket"
)

var _ fulfillment.Broadcaster = (*Hub)(nil)

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, hub.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_Broadcast(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(8, nil)
	go hub.Run(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listener not permitted in this environment: %v", err)
	}

	srv := httptest.NewUnstartedServer(hub)
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)

	wsURL := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	waitForClients(t, hub, 1)

	msg := []byte(`{"type":"fulfillment","status":"succeeded"}`)
	hub.Broadcast(msg)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	if string(got) != string(msg) {
		t.Fatalf("expected %q, got %q", msg, got)
	}

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	hub := NewHub(1, nil)

	done := make(chan struct{})
	go func() {
		hub.Broadcast([]byte("a"))
		hub.Broadcast([]byte("b"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcast blocked without a running hub")
	}
	if got := len(hub.broadcast); got != 1 {
		t.Fatalf("expected one buffered message, got %d", got)
	}
}
