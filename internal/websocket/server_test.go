package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sdvuuv/spitec/pkg/logger"
)

type echoHandler struct{}

func (echoHandler) HandleMessage(client *Client, messageType string, data map[string]any) error {
	client.SetState(data)
	client.SendMessage(&Message{Type: messageType + "_ack", Data: data})
	return nil
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := NewServer(logger.NewNop(), nil)
	s.SetMessageHandler(echoHandler{})
	go s.Run()
	t.Cleanup(s.Stop)

	ts := httptest.NewServer(http.HandlerFunc(s.HandleConnection))
	t.Cleanup(ts.Close)
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestSessionGreeting(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Type != MessageTypeSession {
		t.Fatalf("first message type = %q, want %q", msg.Type, MessageTypeSession)
	}
	id, _ := msg.Data["session_id"].(string)
	if len(id) != 36 {
		t.Errorf("session id %q is not a uuid", id)
	}
}

func TestRequestReply(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)

	var greeting Message
	if err := conn.ReadJSON(&greeting); err != nil {
		t.Fatalf("read greeting failed: %v", err)
	}

	if err := conn.WriteJSON(Message{Type: MessageTypeViewUpdate, Data: map[string]any{"satellite": "G05"}}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var reply Message
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply failed: %v", err)
	}
	if reply.Type != MessageTypeViewUpdate+"_ack" || reply.Data["satellite"] != "G05" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestMalformedMessageGetsError(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url)

	var greeting Message
	conn.ReadJSON(&greeting)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var reply Message
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if reply.Type != MessageTypeError {
		t.Errorf("reply type = %q, want error", reply.Type)
	}
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	s, url := startServer(t)
	a := dial(t, url)
	b := dial(t, url)

	for _, c := range []*websocket.Conn{a, b} {
		var greeting Message
		if err := c.ReadJSON(&greeting); err != nil {
			t.Fatalf("read greeting failed: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.ClientCount() != 2 {
		t.Fatalf("client count = %d, want 2", s.ClientCount())
	}

	s.Broadcast(&Message{Type: MessageTypeDatasetReloaded, Data: map[string]any{"sites": 3}})

	for _, c := range []*websocket.Conn{a, b} {
		var msg Message
		if err := c.ReadJSON(&msg); err != nil {
			t.Fatalf("read broadcast failed: %v", err)
		}
		if msg.Type != MessageTypeDatasetReloaded {
			t.Errorf("broadcast type = %q", msg.Type)
		}
	}
}

func TestBroadcastAfterStopDoesNotBlock(t *testing.T) {
	s := NewServer(logger.NewNop(), nil)
	go s.Run()
	s.Stop()

	done := make(chan struct{})
	go func() {
		s.Broadcast(&Message{Type: MessageTypeDatasetReloaded})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked after Stop")
	}
}
