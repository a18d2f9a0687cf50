// Package presence tracks which users are connected to this instance and
// pushes real-time events to them. Registry maps a UID to its live
// connection; Gateway publishes frames locally or, when a Directory and a
// relay are configured, through the instance that holds the user.
package presence

import (
	"sync"

	"github.com/flicker/match-app/internal/metrics"
)

// Conn is a registered connection handle.
type Conn interface {
	Send(data []byte) error
}

// Registry maps UIDs to their most recent connection. A UID has at most one
// entry; registering again replaces the previous handle.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register records conn as uid's connection, replacing any earlier one.
func (r *Registry) Register(uid string, conn Conn) {
	r.mu.Lock()
	r.conns[uid] = conn
	n := len(r.conns)
	r.mu.Unlock()
	metrics.OnlineUsers.Set(float64(n))
}

// Unregister removes uid. Absent UIDs are ignored.
func (r *Registry) Unregister(uid string) {
	r.mu.Lock()
	delete(r.conns, uid)
	n := len(r.conns)
	r.mu.Unlock()
	metrics.OnlineUsers.Set(float64(n))
}

// Release removes uid only while it still maps to conn, so an old socket
// closing late never evicts a newer one. It reports whether it removed.
func (r *Registry) Release(uid string, conn Conn) bool {
	r.mu.Lock()
	cur, ok := r.conns[uid]
	if ok && cur == conn {
		delete(r.conns, uid)
	} else {
		ok = false
	}
	n := len(r.conns)
	r.mu.Unlock()
	metrics.OnlineUsers.Set(float64(n))
	return ok
}

// Lookup returns uid's connection, if any.
func (r *Registry) Lookup(uid string) (Conn, bool) {
	r.mu.RLock()
	conn, ok := r.conns[uid]
	r.mu.RUnlock()
	return conn, ok
}

// Count returns the number of registered UIDs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
