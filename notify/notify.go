// Package notify delivers best-effort events to riders over their live
// websocket connection.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("user has no live connection")

const (
	writeWait  = 5 * time.Second
	sendBuffer = 16
)

// Event is the frame written to the rider's connection.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Conn is the part of a websocket connection the registry uses.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type client struct {
	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Registry maps user ids to their live connection. A user has at most one;
// registering again replaces the previous connection.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*client

	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Register binds conn to userID and starts its writer.
func (r *Registry) Register(userID string, conn Conn) {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}

	r.mu.Lock()
	prev := r.clients[userID]
	r.clients[userID] = c
	r.mu.Unlock()

	if prev != nil {
		prev.stop()
	}
	go r.write(userID, c)
}

// Unregister drops the connection for userID if conn is still the one
// registered.
func (r *Registry) Unregister(userID string, conn Conn) {
	r.mu.Lock()
	c, ok := r.clients[userID]
	if !ok || c.conn != conn {
		r.mu.Unlock()
		return
	}
	delete(r.clients, userID)
	r.mu.Unlock()

	c.stop()
}

// Lookup reports whether userID has a live connection.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	if !ok {
		return nil, false
	}
	return c.conn, true
}

// Notify queues an event for userID without blocking. It fails when the user
// is not connected or their queue is full.
func (r *Registry) Notify(ctx context.Context, userID, event string, payload any) error {
	data, err := json.Marshal(Event{Event: event, Payload: payload})
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	if !ok {
		return ErrNotConnected
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrNotConnected
	default:
		r.logger.WarnContext(ctx, "dropping notification, send queue full", "user_id", userID, "event", event)
		return errors.New("notification queue full")
	}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

func (r *Registry) write(userID string, c *client) {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				r.logger.Warn("failed to write notification", "user_id", userID, "error", err)
				r.Unregister(userID, c.conn)
				return
			}
		}
	}
}

// ServeHTTP upgrades the request and registers the connection under the
// userId query parameter until the peer goes away.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	userID := req.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.WarnContext(req.Context(), "websocket upgrade failed", "error", err)
		return
	}
	r.Register(userID, conn)
	r.logger.InfoContext(req.Context(), "live connection registered", "user_id", userID)

	go func() {
		defer r.Unregister(userID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
