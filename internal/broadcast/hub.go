// Package broadcast fans out internal/stress.Alert events to connected
// WebSocket clients. There is no server-side hub anywhere in the
// teacher's tree (its gorilla/websocket usage is all client-side
// exchange feed adapters), so this follows gorilla/websocket's own
// documented register/unregister/broadcast-channel hub shape, using
// the same mutex-guarded-map idiom the Engine uses for per-symbol state.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sawpanic/cascadeengine/internal/stress"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeTimeout = 5 * time.Second

// Hub holds every connected client and fans out alerts to all of them.
type Hub struct {
	log zerolog.Logger

	mu      sync.Mutex
	clients map[*client]bool
}

type client struct {
	conn *websocket.Conn
	send chan stress.Alert
}

// NewHub constructs an empty Hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*client]bool),
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection for broadcast until it disconnects or errors.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan stress.Alert, 32)}
	h.register(c)
	defer h.unregister(c)

	go c.writePump(h.log)
	c.readPump(h.log)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
}

// Broadcast pushes an alert to every connected client. A client whose
// send buffer is full is dropped rather than allowed to block the hub.
func (h *Hub) Broadcast(a stress.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- a:
		default:
			h.log.Warn().Msg("dropping slow websocket client")
			delete(h.clients, c)
			close(c.send)
			c.conn.Close()
		}
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (c *client) writePump(log zerolog.Logger) {
	for a := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		data, err := json.Marshal(a)
		if err != nil {
			log.Warn().Err(err).Msg("marshal alert for websocket client")
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *client) readPump(log zerolog.Logger) {
	defer c.conn.Close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
