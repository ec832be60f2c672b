// Package reload tracks live-reload websocket clients and broadcasts the
// reload signal to them.
package reload

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/snowball-c3/c3-scripts/internal/logging"
)

// Message is the only frame sent to clients. Any receipt means "refresh everything".
const Message = "reload"

// Conn is the subset of *websocket.Conn the registry needs.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DefaultWriteTimeout bounds the reload write to a single client.
const DefaultWriteTimeout = 2 * time.Second

// writeDeadliner is implemented by *websocket.Conn. Writes to clients that
// support it are bounded so a stalled peer cannot hold up a broadcast.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Observer is notified whenever the number of clients changes.
type Observer func(clients int)

// Registry is the set of connected clients. It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	clients  map[Conn]struct{}
	closed   bool
	observer Observer
	logger   *slog.Logger
	upgrader websocket.Upgrader

	writeTimeout time.Duration
}

// NewRegistry creates an empty registry. observer may be nil.
func NewRegistry(logger *slog.Logger, observer Observer) *Registry {
	return &Registry{
		clients:      make(map[Conn]struct{}),
		observer:     observer,
		logger:       logging.OrDefault(logger),
		writeTimeout: DefaultWriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

// SetWriteTimeout changes the per-client write bound used by Broadcast.
// A non-positive d restores DefaultWriteTimeout.
func (r *Registry) SetWriteTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultWriteTimeout
	}

	r.mu.Lock()
	r.writeTimeout = d
	r.mu.Unlock()
}

// Add registers c. It reports false, and closes c, when the registry has
// already been closed.
func (r *Registry) Add(c Conn) bool {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		_ = c.Close()

		return false
	}

	r.clients[c] = struct{}{}
	n := len(r.clients)
	r.mu.Unlock()

	r.notify(n)

	return true
}

// Remove unregisters c. Removing an unknown client is a no-op.
func (r *Registry) Remove(c Conn) {
	r.mu.Lock()

	if _, ok := r.clients[c]; !ok {
		r.mu.Unlock()
		return
	}

	delete(r.clients, c)
	n := len(r.clients)
	r.mu.Unlock()

	r.notify(n)
}

// Count returns the number of registered clients.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.clients)
}

// Broadcast sends Message to every registered client and returns how many
// received it. A client whose write fails is dropped and closed; Broadcast
// itself never fails.
func (r *Registry) Broadcast() int {
	r.mu.Lock()
	clients := make([]Conn, 0, len(r.clients))

	for c := range r.clients {
		clients = append(clients, c)
	}
	timeout := r.writeTimeout
	r.mu.Unlock()

	sent := 0

	for _, c := range clients {
		if err := send(c, timeout); err != nil {
			r.logger.Debug("dropping stale reload client", slog.String("error", err.Error()))
			r.Remove(c)
			_ = c.Close()

			continue
		}

		sent++
	}

	return sent
}

func send(c Conn, timeout time.Duration) error {
	if d, ok := c.(writeDeadliner); ok {
		if err := d.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}

	return c.WriteMessage(websocket.TextMessage, []byte(Message))
}

// CloseAll closes and removes every client. Later Add calls are refused.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[Conn]struct{})
	r.closed = true
	r.mu.Unlock()

	for c := range clients {
		_ = c.Close()
	}

	r.notify(0)
}

func (r *Registry) notify(n int) {
	if r.observer != nil {
		r.observer(n)
	}
}

// ServeHTTP upgrades the request to a websocket and keeps the client
// registered until it disconnects.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	if !r.Add(conn) {
		return
	}

	r.logger.Debug("reload client connected", slog.String("remote", req.RemoteAddr))

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	r.Remove(conn)
	_ = conn.Close()

	r.logger.Debug("reload client disconnected", slog.String("remote", req.RemoteAddr))
}

// IsUpgrade reports whether req asks for a websocket upgrade.
func IsUpgrade(req *http.Request) bool {
	return websocket.IsWebSocketUpgrade(req)
}
