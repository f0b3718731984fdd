package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

// Event is pushed to dashboard subscribers after a collector changes
// persisted state, so pages can refresh the affected account immediately
// instead of polling blindly.
type Event struct {
	Type      string    `json:"type"` // "trades_synced" or "account_updated"
	AccountID uint      `json:"account_id"`
	Time      time.Time `json:"time"`
}

const (
	EventTradesSynced   = "trades_synced"
	EventAccountUpdated = "account_updated"
)

// Hub fans sync events out to connected dashboard sockets. Slow or broken
// subscribers are dropped rather than blocking the collectors.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards are served from a different origin than the API.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and registers the socket until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.mu.Unlock()

	logger.WithField("subscribers", count).Debug("dashboard socket connected")

	// Drain control frames; any read error means the peer is gone.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast pushes one event to every subscriber.
func (h *Hub) Broadcast(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(event); err != nil {
			logger.WithError(err).Debug("dropping dashboard socket")
			h.drop(conn)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
	h.mu.Unlock()
}
