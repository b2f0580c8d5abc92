package devstore

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/avolkov/featurepipe/internal/featurestore"
)

// Update is one upsert event pushed to websocket subscribers.
type Update struct {
	Key        string                 `json:"key"`
	Features   []featurestore.Feature `json:"features"`
	ObservedAt time.Time              `json:"observedAt"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Allow non-browser clients
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

const (
	// maxClients caps concurrent feed subscribers.
	maxClients = 1024

	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// client is one websocket subscriber.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts store upserts to connected websocket clients. Slow clients
// are disconnected rather than allowed to stall the feed.
type Hub struct {
	logger     *slog.Logger
	broadcast  chan Update
	register   chan *client
	unregister chan *client

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a hub; call Run in a goroutine to start dispatching.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		broadcast:  make(chan Update, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]struct{}),
	}
}

// Run dispatches registrations and broadcasts until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case update := <-h.broadcast:
			data, err := json.Marshal(update)
			if err != nil {
				h.logger.Error("failed to encode update", "error", err)
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// Client buffer full; drop the update for this client.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues an update for all subscribers. Never blocks the caller;
// the feed is best-effort and the store remains the source of truth.
func (h *Hub) Broadcast(update Update) {
	select {
	case h.broadcast <- update:
	default:
		h.logger.Warn("update feed backlogged, dropping event", "key", update.Key)
	}
}

// ClientCount returns the current number of subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and subscribes it to the update feed.
func (h *Hub) ServeWS(c *gin.Context) {
	if h.ClientCount() >= maxClients {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many subscribers"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	cl := &client{conn: conn, send: make(chan []byte, 64)}
	h.register <- cl

	go cl.writePump(h)
	go cl.readPump(h)
}

// writePump sends queued updates and periodic pings to the peer.
func (c *client) writePump(h *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames and detects disconnects.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
