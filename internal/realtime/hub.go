// Package realtime pushes chat events to websocket subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatdeck/internal/metrics"
	"github.com/eldtechnologies/chatdeck/internal/models"
	"github.com/eldtechnologies/chatdeck/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxInboundSize = 4096
	sendBuffer     = 32
)

type client struct {
	conn   *websocket.Conn
	chatID string
	send   chan []byte
}

// Hub fans chat events out to the websocket connections subscribed to each
// chat. Events arrive through the live store so every instance sees them.
type Hub struct {
	live     store.LiveStore
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	// Keepalive intervals; pingPeriod must stay below pongWait.
	pingPeriod time.Duration
	pongWait   time.Duration

	mu    sync.RWMutex
	chats map[string]map[*client]struct{}
}

// NewHub creates a hub. Browser connections are accepted from the listed
// origins or from the gateway's own host.
func NewHub(live store.LiveStore, logger zerolog.Logger, allowedOrigins []string) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	h := &Hub{
		live:       live,
		logger:     logger,
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
		chats:      make(map[string]map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed["*"] || allowed[origin] {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
	return h
}

// Start subscribes to the live store and relays its events to local
// subscribers until ctx is cancelled. The subscription is active when Start
// returns.
func (h *Hub) Start(ctx context.Context) error {
	events, err := h.live.Subscribe(ctx)
	if err != nil {
		return err
	}
	go func() {
		for event := range events {
			h.broadcast(event)
		}
		h.logger.Info().Msg("realtime hub stopped")
	}()
	return nil
}

// Serve upgrades the request and streams chatID's events until the peer
// goes away. Callers must have checked ownership already.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, chatID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Debug().Err(err).Str("chat_id", chatID).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, chatID: chatID, send: make(chan []byte, sendBuffer)}
	h.register(c)

	go h.writePump(c)
	h.readPump(c)
}

// Clients returns the number of local subscribers for a chat.
func (h *Hub) Clients(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.chats[chatID])
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.chats[c.chatID]
	if !ok {
		subs = make(map[*client]struct{})
		h.chats[c.chatID] = subs
	}
	subs[c] = struct{}{}
	metrics.WebsocketClients.Inc()
}

// unregister removes c and closes its send channel. It is safe to call
// more than once.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	subs, ok := h.chats[c.chatID]
	if !ok {
		return
	}
	if _, ok := subs[c]; !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.chats, c.chatID)
	}
	close(c.send)
	metrics.WebsocketClients.Dec()
}

func (h *Hub) broadcast(event models.ChatEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("failed to encode chat event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.chats[event.ChatID] {
		select {
		case c.send <- data:
		default:
			// Slow consumer; dropping it keeps the hub moving
			h.logger.Warn().Str("chat_id", c.chatID).Msg("dropping slow websocket client")
			h.removeLocked(c)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to process control frames and
// notice disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
