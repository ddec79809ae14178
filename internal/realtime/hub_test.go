package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatdeck/internal/models"
	"github.com/eldtechnologies/chatdeck/internal/store"
)

func startHub(t *testing.T, opts ...func(*Hub)) (*Hub, *store.MemoryStore, *httptest.Server) {
	t.Helper()
	live := store.NewMemoryStore()
	hub := NewHub(live, zerolog.Nop(), nil)
	for _, opt := range opts {
		opt(hub)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := hub.Start(ctx); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("chat"))
	}))
	t.Cleanup(srv.Close)
	return hub, live, srv
}

func dial(t *testing.T, srv *httptest.Server, chatID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?chat=" + chatID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHubDeliversOnlySubscribedChat(t *testing.T) {
	hub, live, srv := startHub(t)
	conn := dial(t, srv, "c1")
	waitFor(t, func() bool { return hub.Clients("c1") == 1 })

	ctx := context.Background()
	live.Publish(ctx, models.ChatEvent{Type: models.EventChatRenamed, ChatID: "other", Title: "nope"})
	live.Publish(ctx, models.ChatEvent{
		Type:    models.EventMessageCreated,
		ChatID:  "c1",
		Message: &models.Message{ID: "m1", ChatID: "c1", Role: models.RoleAssistant, Content: "hi"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.ChatEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.ChatID != "c1" || got.Type != models.EventMessageCreated || got.Message.Content != "hi" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub, _, srv := startHub(t)
	conn := dial(t, srv, "c1")
	waitFor(t, func() bool { return hub.Clients("c1") == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.Clients("c1") == 0 })
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	_, _, srv := startHub(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?chat=c1"

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(store.NewMemoryStore(), zerolog.Nop(), nil)

	// No write pump drains this client, so its buffer fills up
	slow := &client{chatID: "c1", send: make(chan []byte, sendBuffer)}
	hub.register(slow)

	event := models.ChatEvent{Type: models.EventChatRenamed, ChatID: "c1", Title: "t"}
	for i := 0; i < sendBuffer; i++ {
		hub.broadcast(event)
	}
	if hub.Clients("c1") != 1 {
		t.Fatal("client dropped before its buffer was full")
	}

	hub.broadcast(event)
	if n := hub.Clients("c1"); n != 0 {
		t.Fatalf("expected slow client to be dropped, %d left", n)
	}

	for i := 0; i < sendBuffer; i++ {
		<-slow.send
	}
	if _, ok := <-slow.send; ok {
		t.Fatal("expected send channel to be closed")
	}
}

func TestHubClosesDroppedConnection(t *testing.T) {
	hub, _, srv := startHub(t)
	conn := dial(t, srv, "c1")
	waitFor(t, func() bool { return hub.Clients("c1") == 1 })

	hub.mu.RLock()
	var c *client
	for c = range hub.chats["c1"] {
	}
	hub.mu.RUnlock()

	// Same removal the broadcast path performs for a slow client
	hub.unregister(c)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
	if hub.Clients("c1") != 0 {
		t.Fatal("expected client to be unregistered")
	}
}

func TestHubPingsClients(t *testing.T) {
	hub, _, srv := startHub(t, func(h *Hub) {
		h.pingPeriod = 20 * time.Millisecond
		h.pongWait = 100 * time.Millisecond
	})
	conn := dial(t, srv, "c1")
	waitFor(t, func() bool { return hub.Clients("c1") == 1 })

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(data string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}

	// Answered pings keep the connection registered past pongWait
	time.Sleep(300 * time.Millisecond)
	if hub.Clients("c1") != 1 {
		t.Fatal("responsive client was dropped")
	}
}

func TestHubDropsClientWithoutPong(t *testing.T) {
	hub, _, srv := startHub(t, func(h *Hub) {
		h.pingPeriod = 20 * time.Millisecond
		h.pongWait = 60 * time.Millisecond
	})
	// The client never reads, so pings go unanswered
	dial(t, srv, "c1")
	waitFor(t, func() bool { return hub.Clients("c1") == 1 })
	waitFor(t, func() bool { return hub.Clients("c1") == 0 })
}
