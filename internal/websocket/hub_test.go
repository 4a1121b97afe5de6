package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/cleanround/internal/auth"

	ws "github.com/coder/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, orgID, userID int64) *Client {
	return &Client{
		hub:    hub,
		send:   make(chan []byte, sendBufferSize),
		orgID:  orgID,
		userID: userID,
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Errorf("unexpected message %s", data)
	default:
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(testLogger())

	c1 := mockClient(hub, 1, 10)
	c2 := mockClient(hub, 2, 20)
	hub.Register(c1)
	hub.Register(c2)
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("clients = %d, want 2", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("clients = %d, want 1", got)
	}

	hub.Unregister(c2)
	// Double unregister must not panic on the closed channel.
	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("clients = %d, want 0", got)
	}
}

func TestBroadcastStaysInOrg(t *testing.T) {
	hub := NewHub(testLogger())

	a1 := mockClient(hub, 1, 10)
	a2 := mockClient(hub, 1, 11)
	b := mockClient(hub, 2, 20)
	for _, c := range []*Client{a1, a2, b} {
		hub.Register(c)
	}

	hub.Broadcast(1, NewMessage("room_task", "inspected", 42, map[string]any{"result": "inspected_fail"}))

	for _, c := range []*Client{a1, a2} {
		got := receive(t, c)
		if got.Type != "room_task_inspected" || got.ID != 42 {
			t.Errorf("message = %+v, want room_task_inspected 42", got)
		}
		if got.Extra["result"] != "inspected_fail" {
			t.Errorf("extra = %v", got.Extra)
		}
	}
	assertEmpty(t, b)
}

func TestSendToUser(t *testing.T) {
	hub := NewHub(testLogger())

	phone := mockClient(hub, 1, 10)
	laptop := mockClient(hub, 1, 10)
	other := mockClient(hub, 1, 11)
	for _, c := range []*Client{phone, laptop, other} {
		hub.Register(c)
	}

	hub.SendToUser(10, Message{Type: "notification"})

	for _, c := range []*Client{phone, laptop} {
		if got := receive(t, c); got.Type != "notification" {
			t.Errorf("type = %q, want notification", got.Type)
		}
	}
	assertEmpty(t, other)
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(testLogger())
	c := mockClient(hub, 1, 10)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(1, NewMessage("test", "fill", int64(i), nil))
	}
	// Dropped, not blocked.
	hub.Broadcast(1, NewMessage("test", "dropped", 999, nil))

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("buffered = %d, want %d", got, sendBufferSize)
	}
	hub.Unregister(c)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("activity", "published", 5, nil)
	if msg.Type != "activity_published" {
		t.Errorf("type = %q, want activity_published", msg.Type)
	}
	if msg.Entity != "activity" || msg.Action != "published" || msg.ID != 5 {
		t.Errorf("message = %+v", msg)
	}
}

func TestHandleWebSocket(t *testing.T) {
	hub := NewHub(testLogger())
	h := HandleWebSocket(hub, nil, testLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithAuth(r.Context(), auth.AuthContext{UserID: 10, OrgID: 1})
		h(w, r.WithContext(ctx))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("clients = %d, want 1", hub.ClientCount())
	}

	hub.Broadcast(1, NewMessage("deficiency", "resolved", 3, nil))
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	json.Unmarshal(data, &got)
	if got.Type != "deficiency_resolved" || got.ID != 3 {
		t.Errorf("message = %+v, want deficiency_resolved 3", got)
	}
}

func TestHandleWebSocketUnauthenticated(t *testing.T) {
	h := HandleWebSocket(NewHub(testLogger()), nil, testLogger())
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/ws", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
