// Package websocket pushes approval notifications to signed-in back office users.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fruittrace/internal/logging"
	"fruittrace/internal/middleware"
	"fruittrace/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Message is a payload addressed to clients holding one of Roles. No roles means everyone.
type Message struct {
	Roles []model.Role
	Data  []byte
}

func (m Message) deliverTo(role model.Role) bool {
	if len(m.Roles) == 0 {
		return true
	}
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// client is one authenticated connection.
type client struct {
	hub   *Hub
	conn  *websocket.Conn
	actor model.Actor
	send  chan []byte
}

// Hub tracks connected clients and fans messages out by role.
type Hub struct {
	Broadcast  chan Message
	register   chan *client
	unregister chan *client
	done       chan struct{}

	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithAllowedOrigins restricts browser connections to the given origins.
// Requests without an Origin header (non-browser clients) are always accepted.
func WithAllowedOrigins(origins ...string) HubOption {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(h *Hub) {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		Broadcast:  make(chan Message, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run owns the client set. It returns when ctx is done, closing every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			logging.LogKV(logging.LevelInfo, "websocket client connected", map[string]interface{}{
				"user_id": c.actor.ID.String(),
				"role":    string(c.actor.Role),
			})
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				logging.LogKV(logging.LevelInfo, "websocket client disconnected", map[string]interface{}{
					"user_id": c.actor.ID.String(),
				})
			}
			h.mu.Unlock()
		case msg := <-h.Broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !msg.deliverTo(c.actor.Role) {
					continue
				}
				select {
				case c.send <- msg.Data:
				default:
					// slow consumer
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
}

// Publish queues a message for broadcast, giving up when ctx is done.
func (h *Hub) Publish(ctx context.Context, msg Message) error {
	select {
	case h.Broadcast <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (c *client) writePump() {
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

// readPump discards inbound frames; it exists to answer pings and notice the peer leaving.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error("websocket read failed", err, map[string]interface{}{"user_id": c.actor.ID.String()})
			}
			return
		}
	}
}

// ServeWs authenticates the ?token= query parameter and upgrades the connection.
func ServeWs(hub *Hub, c *gin.Context, secret []byte) {
	token := c.Query("token")
	if token == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	actor, err := middleware.ParseToken(token, secret)
	if err != nil {
		logging.LogKV(logging.LevelWarn, "websocket rejected", map[string]interface{}{"error": err.Error()})
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}
	cl := &client{hub: hub, conn: conn, actor: actor, send: make(chan []byte, sendBuffer)}
	select {
	case hub.register <- cl:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go cl.writePump()
	go cl.readPump()
}
