// Package history answers pagination queries over append-only message sequences.
package history

import "chatrelay/pkg/types"

const (
	// DefaultPageSize applies when a caller omits or sends a non-positive limit
	DefaultPageSize = 20
	// MaxPageSize caps a single page
	MaxPageSize = 100
)

// Pager slices histories with configured page bounds
type Pager struct {
	defaultLimit int
	maxLimit     int
}

// NewPager creates a pager; non-positive bounds fall back to the package defaults
func NewPager(defaultLimit, maxLimit int) *Pager {
	if defaultLimit <= 0 {
		defaultLimit = DefaultPageSize
	}
	if maxLimit <= 0 {
		maxLimit = MaxPageSize
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Pager{defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Limit normalizes a requested page size
func (p *Pager) Limit(requested int) int {
	if requested <= 0 {
		return p.defaultLimit
	}
	if requested > p.maxLimit {
		return p.maxLimit
	}
	return requested
}

// Page is one backward page of history
// FUNCTIONAL DISCOVERY: Limit is the size actually applied after clamping, so a
// short page with HasMore set is not the end of history
type Page struct {
	Messages []*types.Message
	Limit    int
	HasMore  bool
}

// Page returns the page preceding beforeID with the effective limit and
// whether older messages remain
func (p *Pager) Page(messages []*types.Message, beforeID string, requested int) Page {
	limit := p.Limit(requested)
	start, end := bounds(messages, beforeID, limit)
	return Page{
		Messages: window(messages, start, end),
		Limit:    limit,
		HasMore:  start > 0,
	}
}

// OlderThan returns up to limit messages strictly preceding beforeID, oldest first
func (p *Pager) OlderThan(messages []*types.Message, beforeID string, limit int) []*types.Message {
	return p.Page(messages, beforeID, limit).Messages
}

// OlderThan returns up to limit messages strictly preceding beforeID, oldest first.
// An empty beforeID yields the newest page; an unknown beforeID is treated as
// having no anchor at the end and yields the earliest page. Fewer than limit
// results means history is exhausted.
func OlderThan(messages []*types.Message, beforeID string, limit int) []*types.Message {
	start, end := bounds(messages, beforeID, limit)
	return window(messages, start, end)
}

func bounds(messages []*types.Message, beforeID string, limit int) (int, int) {
	if limit <= 0 || len(messages) == 0 {
		return 0, 0
	}

	end := len(messages)
	if beforeID != "" {
		end = indexOf(messages, beforeID)
		if end < 0 {
			return 0, min(limit, len(messages))
		}
	}
	return max(0, end-limit), end
}

// Latest returns the newest n messages, oldest first
func Latest(messages []*types.Message, n int) []*types.Message {
	return OlderThan(messages, "", n)
}

func indexOf(messages []*types.Message, id string) int {
	for i, m := range messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func window(messages []*types.Message, start, end int) []*types.Message {
	out := make([]*types.Message, end-start)
	copy(out, messages[start:end])
	return out
}
