package rooms

import "chatrelay/pkg/types"

// Room is a named broadcast channel with shared history
type Room struct {
	name    string
	history []*types.Message
	members []string // connection ids in join order
	typing  []string // display names in the order they started typing
	unread  map[string]int
}

func newRoom(name string) *Room {
	return &Room{name: name, unread: make(map[string]int)}
}

// Name returns the room name
func (r *Room) Name() string { return r.name }

// History returns the room's append-only history; callers must not mutate it
func (r *Room) History() []*types.Message { return r.history }

// Len returns the number of messages in the room
func (r *Room) Len() int { return len(r.history) }

// Members returns member connection ids in join order
func (r *Room) Members() []string {
	return append([]string(nil), r.members...)
}

// MembersExcept returns member connection ids other than the excluded one
func (r *Room) MembersExcept(excluded string) []string {
	out := make([]string, 0, len(r.members))
	for _, id := range r.members {
		if id != excluded {
			out = append(out, id)
		}
	}
	return out
}

// IsMember reports whether a connection belongs to the room
func (r *Room) IsMember(connectionID string) bool {
	_, ok := r.unread[connectionID]
	return ok
}

// Typing returns the current typing set
func (r *Room) Typing() []string {
	return append([]string{}, r.typing...)
}

// Unread returns a copy of the per-member unread counters
func (r *Room) Unread() map[string]int {
	out := make(map[string]int, len(r.unread))
	for id, n := range r.unread {
		out[id] = n
	}
	return out
}

// UnreadFor returns one member's unread counter
func (r *Room) UnreadFor(connectionID string) int {
	return r.unread[connectionID]
}

func (r *Room) append(msg *types.Message) {
	r.history = append(r.history, msg)
}

func (r *Room) addMember(connectionID string) bool {
	if r.IsMember(connectionID) {
		return false
	}
	r.members = append(r.members, connectionID)
	r.unread[connectionID] = 0
	return true
}

func (r *Room) removeMember(connectionID string) bool {
	if !r.IsMember(connectionID) {
		return false
	}
	delete(r.unread, connectionID)
	r.members = removeString(r.members, connectionID)
	return true
}

func (r *Room) setTyping(displayName string, isTyping bool) {
	present := containsString(r.typing, displayName)
	switch {
	case isTyping && !present:
		r.typing = append(r.typing, displayName)
	case !isTyping && present:
		r.typing = removeString(r.typing, displayName)
	}
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func removeString(values []string, v string) []string {
	for i, s := range values {
		if s == v {
			return append(values[:i], values[i+1:]...)
		}
	}
	return values
}
