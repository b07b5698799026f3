package identity

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"chatrelay/pkg/types"
)

// MaxNameLength bounds display names in runes
const MaxNameLength = 64

// User is an identified connection
type User struct {
	ConnectionID string
	DisplayName  string
	rooms        []string
}

// Rooms returns joined room names in join order
func (u *User) Rooms() []string {
	return append([]string(nil), u.rooms...)
}

// InRoom reports whether the user has joined the room
func (u *User) InRoom(room string) bool {
	for _, r := range u.rooms {
		if r == room {
			return true
		}
	}
	return false
}

// AddRoom records a room subscription; it reports false if already present
func (u *User) AddRoom(room string) bool {
	if u.InRoom(room) {
		return false
	}
	u.rooms = append(u.rooms, room)
	return true
}

// Presence returns the wire view of the user
func (u *User) Presence() types.Presence {
	return types.Presence{ID: u.ConnectionID, Username: u.DisplayName}
}

// Registry maps live connections to display names
// ARCHITECTURAL DISCOVERY: Not safe for concurrent use; the hub goroutine is the single owner
type Registry struct {
	byConnection map[string]*User
	byName       map[string]*User
	order        []string // connection ids in join order
}

// NewRegistry creates an empty identity registry
func NewRegistry() *Registry {
	return &Registry{
		byConnection: make(map[string]*User),
		byName:       make(map[string]*User),
	}
}

// NormalizeName trims and NFC-normalizes a requested display name
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateName checks a display name without registering it
func ValidateName(name string) (string, error) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return "", ErrEmptyName
	}
	if utf8.RuneCountInString(normalized) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return normalized, nil
}

// Join registers a display name for a connection
// FUNCTIONAL DISCOVERY: Uniqueness is checked against currently present users only, never reserved
func (r *Registry) Join(connectionID, requestedName string) (*User, error) {
	if connectionID == "" {
		return nil, ErrEmptyConnectionID
	}
	if _, exists := r.byConnection[connectionID]; exists {
		return nil, ErrAlreadyIdentified
	}

	name, err := ValidateName(requestedName)
	if err != nil {
		return nil, err
	}
	if _, taken := r.byName[name]; taken {
		return nil, ErrNameTaken
	}

	user := &User{ConnectionID: connectionID, DisplayName: name}
	r.byConnection[connectionID] = user
	r.byName[name] = user
	r.order = append(r.order, connectionID)
	return user, nil
}

// Remove drops a connection's identity; idempotent
func (r *Registry) Remove(connectionID string) (*User, bool) {
	user, exists := r.byConnection[connectionID]
	if !exists {
		return nil, false
	}

	delete(r.byConnection, connectionID)
	delete(r.byName, user.DisplayName)
	for i, id := range r.order {
		if id == connectionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return user, true
}

// Lookup returns the user bound to a connection
func (r *Registry) Lookup(connectionID string) (*User, bool) {
	user, exists := r.byConnection[connectionID]
	return user, exists
}

// LookupName returns the present user holding a display name
func (r *Registry) LookupName(name string) (*User, bool) {
	user, exists := r.byName[NormalizeName(name)]
	return user, exists
}

// Online lists present users in join order
func (r *Registry) Online() []types.Presence {
	online := make([]types.Presence, 0, len(r.order))
	for _, id := range r.order {
		online = append(online, r.byConnection[id].Presence())
	}
	return online
}

// ConnectionIDs lists identified connections in join order
func (r *Registry) ConnectionIDs() []string {
	return append([]string(nil), r.order...)
}

// ConnectionIDsExcept lists identified connections other than the excluded one
func (r *Registry) ConnectionIDsExcept(excluded string) []string {
	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if id != excluded {
			ids = append(ids, id)
		}
	}
	return ids
}

// Count returns the number of present users
func (r *Registry) Count() int {
	return len(r.byConnection)
}
