package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/beajinsu/investment/internal/usecase"
	"github.com/beajinsu/investment/internal/viewmodel"
	xlogger "github.com/beajinsu/investment/pkg/logger"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 8
)

// Hub streams table snapshots to WebSocket clients. It subscribes to
// every table's change notifications once at construction; clients
// that cannot keep up are dropped rather than allowed to block the
// view-model's synchronous emit path.
type Hub struct {
	logger    *xlogger.Logger
	dashboard *usecase.Dashboard
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[string]map[*client]struct{} // table -> clients
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates the hub and wires it to every dashboard table.
func NewHub(logger *xlogger.Logger, dashboard *usecase.Dashboard) *Hub {
	h := &Hub{
		logger:    logger,
		dashboard: dashboard,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]map[*client]struct{}),
	}
	for _, name := range dashboard.Names() {
		name := name
		dashboard.Table(name).VM.Subscribe(func(snap viewmodel.Snapshot) {
			h.broadcast(name, snap)
		})
	}
	return h
}

// RegisterRoutes registers the WebSocket endpoint.
func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/tables/:name", h.Serve)
}

// Serve upgrades the connection, sends the current snapshot, and then
// pushes every subsequent change until the client goes away.
func (h *Hub) Serve(c echo.Context) error {
	name := c.Param("name")
	entry := h.dashboard.Table(name)
	if entry == nil {
		return c.NoContent(http.StatusNotFound)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.attach(name, cl)
	h.logger.Debug("ws client connected", xlogger.String("table", name))

	if b, err := json.Marshal(entry.VM.Snapshot()); err == nil {
		cl.send <- b
	}

	go h.writeLoop(name, cl)
	go h.readLoop(name, cl)
	return nil
}

func (h *Hub) attach(table string, cl *client) {
	h.mu.Lock()
	if h.clients[table] == nil {
		h.clients[table] = make(map[*client]struct{})
	}
	h.clients[table][cl] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) detach(table string, cl *client) {
	h.mu.Lock()
	if set, ok := h.clients[table]; ok {
		if _, ok := set[cl]; ok {
			delete(set, cl)
			close(cl.send)
		}
	}
	h.mu.Unlock()
	_ = cl.conn.Close()
}

// broadcast fans a snapshot out to the table's clients. Full send
// buffers drop the client instead of blocking the caller.
func (h *Hub) broadcast(table string, snap viewmodel.Snapshot) {
	b, err := json.Marshal(snap)
	if err != nil {
		return
	}

	h.mu.Lock()
	var slow []*client
	for cl := range h.clients[table] {
		select {
		case cl.send <- b:
		default:
			slow = append(slow, cl)
		}
	}
	for _, cl := range slow {
		delete(h.clients[table], cl)
		close(cl.send)
	}
	h.mu.Unlock()

	for _, cl := range slow {
		_ = cl.conn.Close()
		h.logger.Warn("ws client dropped, send buffer full", xlogger.String("table", table))
	}
}

func (h *Hub) writeLoop(table string, cl *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case b, ok := <-cl.send:
			if !ok {
				return
			}
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.detach(table, cl)
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.detach(table, cl)
				return
			}
		}
	}
}

// readLoop exists to notice closed connections; inbound frames are
// discarded.
func (h *Hub) readLoop(table string, cl *client) {
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			h.detach(table, cl)
			return
		}
	}
}
