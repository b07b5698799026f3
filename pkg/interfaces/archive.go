package interfaces

import (
	"context"

	"chatrelay/pkg/types"
)

// Archiver receives committed chat records after state mutation
// FUNCTIONAL DISCOVERY: Write-behind only; nothing is ever read back into live state
type Archiver interface {
	// StoreMessage records a room or private message
	StoreMessage(ctx context.Context, message *types.Message) error

	// StoreReaction records a reaction toggle
	StoreReaction(ctx context.Context, reaction *types.ReactionRecord) error

	// Transcript returns the most recent archived messages of a room, oldest first
	Transcript(ctx context.Context, room string, limit int) ([]*types.Message, error)

	// HealthCheck verifies archive connectivity
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases resources
	Close() error
}
