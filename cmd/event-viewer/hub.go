package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Event is a mirrored bus event as read from Kafka. The payload is kept raw.
type Event struct {
	Topic   string          `json:"topic"`
	TsMs    int64           `json:"ts_ms"`
	CorrID  string          `json:"corr_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type client struct {
	conn   *websocket.Conn
	corrID string // empty receives everything
	send   chan Event
}

// Hub fans events out to connected browsers. A client that cannot keep up is
// dropped rather than stalling the others.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  zerolog.Logger
}

func newHub(logger zerolog.Logger) *Hub {
	return &Hub{clients: make(map[*client]struct{}), logger: logger}
}

// Broadcast delivers ev to every client whose filter matches.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if c.corrID != "" && c.corrID != ev.CorrID {
			continue
		}
		select {
		case c.send <- ev:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("Viewer too slow, disconnecting")
		h.remove(c)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info().Int("clients", n).Str("corrId", c.corrID).Msg("Viewer connected")
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info().Int("clients", n).Msg("Viewer disconnected")
}

var upgrader = websocket.Upgrader{
	// Local dev tool; any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request. ?corr_id= restricts the stream to one
// interaction.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	c := &client{conn: conn, corrID: r.URL.Query().Get("corr_id"), send: make(chan Event, 64)}
	h.add(c)

	go func() {
		defer conn.Close()
		for ev := range c.send {
			if err := conn.WriteJSON(ev); err != nil {
				h.remove(c)
				return
			}
		}
	}()
	go func() {
		defer h.remove(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
