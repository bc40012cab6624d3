// Hub accepts WebSocket upgrades and tracks live sessions, mirroring
// the teacher's ConnectionManager (internal/websocket/services/
// connection.go): a registry keyed by connection id, entered and left
// around each session's lifetime, with an aggregate session count,
// minus the auth/JWT layer spec.md's anonymous
// WebSocket surface doesn't need.
package wsapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"wandererkills/internal/broker"
	"wandererkills/internal/eventstore"
	"wandererkills/internal/subscription"
)

// Hub upgrades incoming HTTP connections to WebSocket sessions and
// tracks them for observability.
type Hub struct {
	upgrader websocket.Upgrader

	manager *subscription.Manager
	store   *eventstore.Store
	broker  *broker.Broker
	log     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewHub builds a Hub. allowedOrigin is spec.md §6's optional
// ORIGIN_HOST whitelist; an empty string allows any origin.
func NewHub(manager *subscription.Manager, store *eventstore.Store, b *broker.Broker, allowedOrigin string, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		manager:  manager,
		store:    store,
		broker:   b,
		log:      log,
		sessions: make(map[string]*Session),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}
	return h
}

// ServeHTTP upgrades the request and runs the session until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	session := NewSession(conn, h.manager, h.store, h.broker, h.log)

	h.mu.Lock()
	h.sessions[session.id] = session
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.sessions, session.id)
		h.mu.Unlock()
	}()

	session.Run(r.Context())
}

// ActiveSessions reports the number of live WebSocket sessions, for
// /metrics.
func (h *Hub) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every live session's connection; each session then
// tears itself down as its read loop ends.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		s.conn.Close()
	}
}
