package router

import (
	"sync"
	"time"
)

// DefaultMessagesPerMinute applies when no limit is configured
const DefaultMessagesPerMinute = 100

// RateLimiter implements per-connection message rate limiting
// ARCHITECTURAL DISCOVERY: State is keyed by connection id and forgotten on
// disconnect, so a reconnecting client starts a fresh window
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	now     func() time.Time
	clients map[string]*ClientLimit
}

// ClientLimit tracks the current window for one connection
type ClientLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter creates a limiter allowing perMinute messages per connection
func NewRateLimiter(perMinute int, now func() time.Time) *RateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultMessagesPerMinute
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		limit:   perMinute,
		now:     now,
		clients: make(map[string]*ClientLimit),
	}
}

// Allow reports whether the connection may send another message
func (rl *RateLimiter) Allow(connectionID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	limit, exists := rl.clients[connectionID]
	if !exists {
		rl.clients[connectionID] = &ClientLimit{
			messageCount: 1,
			windowStart:  now,
		}
		return true
	}

	// TECHNICAL DISCOVERY: Window resets a full minute after it opened
	if now.Sub(limit.windowStart) >= time.Minute {
		limit.messageCount = 1
		limit.windowStart = now
		return true
	}

	if limit.messageCount >= rl.limit {
		return false
	}

	limit.messageCount++
	return true
}

// Refund returns the slot taken by a send that was rejected after Allow
func (rl *RateLimiter) Refund(connectionID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limit, exists := rl.clients[connectionID]; exists && limit.messageCount > 0 {
		limit.messageCount--
	}
}

// Forget drops state for a departed connection
func (rl *RateLimiter) Forget(connectionID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, connectionID)
}

// Cleanup removes entries idle for more than five windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for connectionID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.clients, connectionID)
		}
	}
}

// Tracked returns the number of connections with live state
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
