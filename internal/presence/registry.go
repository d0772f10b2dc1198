// Package presence owns the live principal-to-connection mapping. A
// connection exists here if and only if it is authenticated and currently
// live; a principal holds at most one live connection at any instant.
package presence

import (
	"sync"

	"go.uber.org/zap"

	"carelink-ws-server/internal/rooms"
	"carelink-ws-server/internal/types"
)

// Registry is the single shared owner of live connections.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]types.Connection
	router *rooms.Router
	logger *zap.Logger
}

func NewRegistry(router *rooms.Router, logger *zap.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]types.Connection),
		router: router,
		logger: logger,
	}
}

// Register admits an authenticated connection. If the principal already has
// a live connection the prior one is superseded: removed from all rooms and
// closed before the new connection is recorded, so no stale handle can
// receive a delivery meant for the new one. The room drop, the map insert
// and the default subscriptions happen under one lock so two racing
// registrations for the same principal cannot leave a superseded handle
// subscribed.
func (r *Registry) Register(p types.Principal, conn types.Connection) {
	r.mu.Lock()
	prior := r.conns[p.ID]
	if prior != nil {
		r.router.Drop(prior)
	}
	r.conns[p.ID] = conn
	for _, key := range rooms.DefaultsFor(p) {
		r.router.Subscribe(conn, key)
	}
	count := len(r.conns)
	r.mu.Unlock()

	if prior != nil {
		prior.Close()
		r.logger.Info("connection superseded", zap.String("principal_id", p.ID))
	}

	r.logger.Info("principal online",
		zap.String("principal_id", p.ID),
		zap.String("role", string(p.Role)),
		zap.Int("online", count),
	)
}

// Unregister removes the connection from presence and from every room it
// was subscribed to. Idempotent; a superseded connection does not evict its
// replacement.
func (r *Registry) Unregister(conn types.Connection) {
	id := conn.PrincipalID()

	r.mu.Lock()
	current, ok := r.conns[id]
	if ok && current == conn {
		delete(r.conns, id)
	} else {
		ok = false
	}
	count := len(r.conns)
	r.mu.Unlock()

	r.router.Drop(conn)

	if ok {
		r.logger.Info("principal offline",
			zap.String("principal_id", id),
			zap.Int("online", count),
		)
	}
}

// Lookup returns the live connection for the principal, or nil.
func (r *Registry) Lookup(principalID string) types.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[principalID]
}

// IsOnline reports whether the principal has a live connection.
func (r *Registry) IsOnline(principalID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[principalID]
	return ok
}

// CountOnline returns the number of live connections.
func (r *Registry) CountOnline() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Shutdown closes every live connection and empties the registry. Used
// during process shutdown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	conns := make([]types.Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.conns = make(map[string]types.Connection)
	r.mu.Unlock()

	for _, conn := range conns {
		r.router.Drop(conn)
		conn.Close()
	}
}
