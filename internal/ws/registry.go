package ws

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// connEntry pairs a connection with the done channel its handler closes
// once the session loops have fully stopped.
type connEntry struct {
	conn *websocket.Conn
	done chan struct{}
}

// Registry tracks the active WebSocket connection per user. A new
// connection for a user replaces and closes the previous one, keeping
// exactly one live duplex channel per session.
type Registry struct {
	mu     sync.RWMutex
	active map[string]connEntry
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]connEntry)}
}

// GetActive returns the active connection for a user, or nil.
func (r *Registry) GetActive(userID string) *websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[userID].conn
}

// Register adds a connection, closing any previous one for the user.
// The returned channel, when non-nil, is the replaced handler's done
// signal: the session state bag has a single owner, so the caller must
// wait on it before touching the session.
func (r *Registry) Register(userID string, conn *websocket.Conn, done chan struct{}) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prevDone <-chan struct{}
	if existing, ok := r.active[userID]; ok && existing.conn != conn {
		_ = existing.conn.Close(websocket.StatusNormalClosure, "session replaced")
		prevDone = existing.done
	}

	r.active[userID] = connEntry{conn: conn, done: done}
	slog.Info("session connection registered", "user_id", userID)
	return prevDone
}

// Unregister removes a connection if it is still the active one.
func (r *Registry) Unregister(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.active[userID]; ok && current.conn == conn {
		delete(r.active, userID)
		slog.Info("session connection unregistered", "user_id", userID)
	}
}

// CloseAll terminates every active connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, entry := range r.active {
		_ = entry.conn.Close(websocket.StatusNormalClosure, "server shutting down")
		slog.Info("session connection closed", "user_id", userID)
	}
	r.active = make(map[string]connEntry)
}
