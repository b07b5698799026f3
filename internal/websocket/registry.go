package websocket

import (
	"log"
	"sync"

	"chatrelay/pkg/interfaces"
)

// Registry tracks live connections by connection id
// ARCHITECTURAL DISCOVERY: Pure connection tracking without chat state; the
// hub consults it only to find delivery targets
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewRegistry creates an empty connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
	}
}

// RegisterConnection adds a connection under its id
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	id := conn.GetConnectionID()
	if id == "" {
		return ErrEmptyConnectionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[id]; exists {
		return ErrDuplicateID
	}
	r.connections[id] = conn
	return nil
}

// UnregisterConnection removes a connection; idempotent
// RACE CONDITION FIX: Only removes the entry if it is this exact instance
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.connections[conn.GetConnectionID()]
	if !exists || registered != conn {
		return
	}
	delete(r.connections, conn.GetConnectionID())
}

// GetConnection returns the live connection for an id
func (r *Registry) GetConnection(id string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[id]
	if !exists {
		return nil, false
	}
	return conn, true
}

// Count returns the number of registered connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll closes every registered connection, used at shutdown
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close connection %s: %v", conn.GetConnectionID(), err)
		}
	}
}

// GetStats returns registry statistics for monitoring
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	queued := 0
	for _, conn := range r.connections {
		queued += conn.Pending()
	}
	return map[string]int{
		"total_connections": len(r.connections),
		"queued_frames":     queued,
	}
}
