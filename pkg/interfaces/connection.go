package interfaces

// Connection represents a client transport connection
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// keeps the hub free of WebSocket specifics
type Connection interface {
	// WriteJSON marshals v and queues it for delivery (thread-safe)
	WriteJSON(v interface{}) error

	// WriteRaw queues an already-encoded frame; it must not block on the network
	WriteRaw(data []byte) error

	// Close closes the connection immediately
	Close() error

	// CloseGracefully flushes queued frames, then closes
	CloseGracefully()

	// GetConnectionID returns the server-assigned connection identity
	GetConnectionID() string
}
