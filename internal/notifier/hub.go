// Package notifier pushes job lifecycle updates to users' live
// WebSocket connections. The hub tracks connections per user; the
// listener feeds it from the NATS event stream so the worker process
// never needs to know who is connected where.
package notifier

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Conn is one live client connection. WriteJSON must be safe to call
// from the hub's goroutine.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Update is the payload pushed to clients when a job settles. Event
// is "job-completed" or "job-failed".
type Update struct {
	Event  string `json:"event"`
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Hub fans job updates out to the owning user's connections. A user
// may hold several connections (multiple tabs); an update goes to all
// of them. Delivery is best-effort: a dead connection is dropped, the
// rest still receive the update.
type Hub struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]map[Conn]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		conns:  make(map[uuid.UUID]map[Conn]struct{}),
		logger: logger,
	}
}

// Register adds a connection for userID.
func (h *Hub) Register(userID uuid.UUID, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[Conn]struct{})
		h.conns[userID] = set
	}
	set[c] = struct{}{}
	h.logger.Debug("WebSocket connection registered", "user_id", userID, "connections", len(set))
}

// Unregister removes a connection. Safe to call for connections the
// hub never saw or already dropped.
func (h *Hub) Unregister(userID uuid.UUID, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, userID)
	}
}

// Push sends an update to every connection userID holds. Users with no
// connections are a no-op; write failures evict the failing connection
// without affecting the others.
func (h *Hub) Push(userID uuid.UUID, update Update) {
	h.mu.RLock()
	set := h.conns[userID]
	conns := make([]Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.WriteJSON(update); err != nil {
			h.logger.Warn("Dropping dead WebSocket connection",
				"error", err, "user_id", userID, "job_id", update.JobID)
			h.Unregister(userID, c)
			_ = c.Close()
		}
	}
}

// ConnectionCount reports the number of live connections for userID.
func (h *Hub) ConnectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// CloseAll tears down every connection, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.conns {
		for c := range set {
			_ = c.Close()
		}
		delete(h.conns, userID)
	}
}
