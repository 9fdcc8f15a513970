package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/sharpline/internal/domain"
)

const (
	hubSendBuffer = 16
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingEvery  = 54 * time.Second
)

// hubEvent es el mensaje que recibe cada cliente por dispatch.
type hubEvent struct {
	Type string               `json:"type"`
	At   time.Time            `json:"at"`
	Rows []domain.SnapshotRow `json:"rows"`
}

// Hub reparte las filas visibles a los clientes WebSocket conectados.
// Un cliente puede filtrar por rol con ?role=.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*hubClient]bool
	upgrader websocket.Upgrader
	now      func() time.Time
}

type hubClient struct {
	conn *websocket.Conn
	role domain.Role
	send chan []byte
}

// NewHub crea un Hub sin clientes.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*hubClient]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
}

// Clients devuelve el número de clientes conectados.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP hace el upgrade y registra al cliente.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &hubClient{
		conn: conn,
		role: domain.Role(r.URL.Query().Get("role")),
		send: make(chan []byte, hubSendBuffer),
	}
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	slog.Debug("websocket client connected", "role", c.role, "clients", n)

	go h.writePump(c)
	go h.readPump(c)
}

// Dispatch envía las filas a cada cliente. Un cliente con el buffer lleno
// se desconecta; nunca bloquea el poll.
func (h *Hub) Dispatch(_ context.Context, rows []domain.SnapshotRow) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now().UTC()
	for c := range h.clients {
		data, err := json.Marshal(hubEvent{Type: "snapshot", At: now, Rows: c.filter(rows)})
		if err != nil {
			return fmt.Errorf("notify.Hub.Dispatch: marshal: %w", err)
		}
		select {
		case c.send <- data:
		default:
			slog.Warn("websocket client too slow, dropping", "role", c.role)
			h.removeLocked(c)
		}
	}
	return nil
}

// Close desconecta a todos los clientes.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *hubClient) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (c *hubClient) filter(rows []domain.SnapshotRow) []domain.SnapshotRow {
	if c.role == "" {
		return rows
	}
	out := make([]domain.SnapshotRow, 0, len(rows))
	for _, row := range rows {
		if row.HasRole(c.role) {
			out = append(out, row)
		}
	}
	return out
}

// readPump solo atiende pongs y detecta el cierre del cliente.
func (h *Hub) readPump(c *hubClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "err", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	ticker := time.NewTicker(hubPingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
