package rooms

import (
	"sync"

	"go.uber.org/zap"

	"carelink-ws-server/internal/metrics"
	"carelink-ws-server/internal/types"
)

// Router manages named subscription groups and delivers events to every
// connection currently subscribed to a room. Rooms are created lazily and
// never explicitly deleted; publishing to an empty room is a no-op.
type Router struct {
	mu         sync.RWMutex
	rooms      map[Key]map[types.Connection]struct{}
	membership map[types.Connection]map[Key]struct{}

	metrics *metrics.Registry
	logger  *zap.Logger
}

func NewRouter(m *metrics.Registry, logger *zap.Logger) *Router {
	return &Router{
		rooms:      make(map[Key]map[types.Connection]struct{}),
		membership: make(map[types.Connection]map[Key]struct{}),
		metrics:    m,
		logger:     logger,
	}
}

// Subscribe adds the connection to the room, creating the room lazily.
func (r *Router) Subscribe(conn types.Connection, key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[key]
	if !ok {
		room = make(map[types.Connection]struct{})
		r.rooms[key] = room
	}
	room[conn] = struct{}{}

	member, ok := r.membership[conn]
	if !ok {
		member = make(map[Key]struct{})
		r.membership[conn] = member
	}
	member[key] = struct{}{}
}

// Unsubscribe removes the connection from the room. Unsubscribing from a
// room the connection is not in is harmless.
func (r *Router) Unsubscribe(conn types.Connection, key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[key]; ok {
		delete(room, conn)
	}
	if member, ok := r.membership[conn]; ok {
		delete(member, key)
	}
}

// Drop releases every room membership held by the connection. Called on
// disconnect so concurrent publishes stop targeting the connection.
func (r *Router) Drop(conn types.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.membership[conn] {
		if room, ok := r.rooms[key]; ok {
			delete(room, conn)
		}
	}
	delete(r.membership, conn)
}

// Publish delivers the message to every connection subscribed to the room
// at the moment of the call. Sends happen outside the lock on a snapshot of
// the subscriber set.
func (r *Router) Publish(key Key, message []byte) {
	r.mu.RLock()
	targets := make([]types.Connection, 0, len(r.rooms[key]))
	for conn := range r.rooms[key] {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		r.logger.Debug("publish to empty room", zap.String("room", string(key)))
		return
	}

	r.deliver(targets, message)
}

// PublishToAny delivers the message once per connection subscribed to any
// of the target rooms, even when a connection is in several of them.
func (r *Router) PublishToAny(keys []Key, message []byte) {
	r.mu.RLock()
	seen := make(map[types.Connection]struct{})
	var targets []types.Connection
	for _, key := range keys {
		for conn := range r.rooms[key] {
			if _, dup := seen[conn]; dup {
				continue
			}
			seen[conn] = struct{}{}
			targets = append(targets, conn)
		}
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	r.deliver(targets, message)
}

func (r *Router) deliver(targets []types.Connection, message []byte) {
	for _, conn := range targets {
		if err := conn.Send(message); err != nil {
			// Slow or dead consumer; its lifecycle goroutine will
			// unregister it.
			r.logger.Debug("delivery dropped",
				zap.String("principal_id", conn.PrincipalID()),
				zap.Error(err),
			)
			if r.metrics != nil {
				r.metrics.DeliveryDropped.Inc()
			}
			continue
		}
		if r.metrics != nil {
			r.metrics.EventsDelivered.Inc()
		}
	}
}

// MemberCount returns the number of connections subscribed to the room.
func (r *Router) MemberCount(key Key) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[key])
}
