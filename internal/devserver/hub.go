package devserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetpack/internal/telemetry"
)

const writeWait = 10 * time.Second

// Message types sent to hot clients.
const (
	MessageBuilt     = "built"
	MessageErrors    = "errors"
	MessageHeartbeat = "heartbeat"
)

// Message is sent to hot clients.
type Message struct {
	Type       string   `json:"type"`
	Hash       string   `json:"hash,omitempty"`
	Files      []string `json:"files,omitempty"`
	StylesOnly bool     `json:"stylesOnly,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

var upgrader = websocket.Upgrader{
	// pages are served by the application host, not this server
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Hub tracks connected hot clients and broadcasts rebuilds to them.
type Hub struct {
	log          zerolog.Logger
	pingInterval time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub(log zerolog.Logger, pingInterval time.Duration) *Hub {
	return &Hub{
		log:          log,
		pingInterval: pingInterval,
		clients:      map[*client]struct{}{},
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to upgrade hot client connection")
		return
	}

	c := &client{id: uuid.NewString(), conn: conn}
	h.add(c)
	defer h.remove(c)

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(c, done)

	conn.SetReadLimit(1024)
	for {
		// clients never send anything, reading just notices the close
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) keepAlive(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			// browsers never expose pings to scripts, the heartbeat keeps the
			// client's timeout from firing between rebuilds
			if err := c.ping(); err != nil {
				_ = c.conn.Close()
				return
			}
			if err := c.write(Message{Type: MessageHeartbeat}); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	telemetry.GetMetrics().HotClients.Add(context.Background(), 1)
	h.log.Debug().Str("client_id", c.id).Str("remote_addr", c.conn.RemoteAddr().String()).Int("clients", n).Msg("Hot client connected")
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		_ = c.conn.Close()
		telemetry.GetMetrics().HotClients.Add(context.Background(), -1)
		h.log.Debug().Str("client_id", c.id).Msg("Hot client disconnected")
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends msg to every client. Clients that fail are dropped.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.write(msg); err != nil {
			h.log.Debug().Err(err).Str("client_id", c.id).Msg("Dropping hot client")
			h.remove(c)
		}
	}

	telemetry.GetMetrics().HotBroadcasts.Add(context.Background(), 1)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = map[*client]struct{}{}
	h.mu.Unlock()

	for c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
		telemetry.GetMetrics().HotClients.Add(context.Background(), -1)
	}
}
