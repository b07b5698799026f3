package rooms

import (
	"strings"
	"unicode/utf8"

	"chatrelay/internal/history"
	"chatrelay/pkg/types"
)

// MaxNameLength bounds room names in runes
const MaxNameLength = 64

// DefaultJoinHistory is how many recent messages a room join returns
const DefaultJoinHistory = 20

// Store owns the room catalog, histories, membership, unread counters and typing sets
// ARCHITECTURAL DISCOVERY: Not safe for concurrent use; the hub goroutine is the single owner
type Store struct {
	rooms       map[string]*Room
	order       []string // room names in creation order
	joinHistory int
}

// JoinResult describes a member's view of a room after joinRoom
type JoinResult struct {
	Room   *Room
	Recent []*types.Message
	Unread int
	Joined bool // false when the connection was already a member
}

// LeaveResult describes one room a disconnecting user left
type LeaveResult struct {
	Room   *Room
	Typing []string
}

// NewStore creates a store holding only the default room
func NewStore(joinHistory int) *Store {
	if joinHistory <= 0 {
		joinHistory = DefaultJoinHistory
	}
	s := &Store{
		rooms:       make(map[string]*Room),
		joinHistory: joinHistory,
	}
	s.Ensure(types.DefaultRoom)
	return s
}

// NormalizeName trims and bounds a requested room name
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyRoomName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrRoomNameTooLong
	}
	return name, nil
}

// Ensure returns the named room, creating it if needed
func (s *Store) Ensure(name string) (*Room, bool) {
	if room, exists := s.rooms[name]; exists {
		return room, false
	}
	room := newRoom(name)
	s.rooms[name] = room
	s.order = append(s.order, name)
	return room, true
}

// Get returns an existing room
func (s *Store) Get(name string) (*Room, bool) {
	room, exists := s.rooms[name]
	return room, exists
}

// Names lists rooms in creation order
func (s *Store) Names() []string {
	return append([]string(nil), s.order...)
}

// Rooms lists rooms in creation order
func (s *Store) Rooms() []*Room {
	out := make([]*Room, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.rooms[name])
	}
	return out
}

// Join subscribes a connection to an existing room; repeated joins are no-ops
func (s *Store) Join(connectionID, name string) (JoinResult, error) {
	room, exists := s.rooms[name]
	if !exists {
		return JoinResult{}, ErrRoomNotFound
	}

	joined := room.addMember(connectionID)
	return JoinResult{
		Room:   room,
		Recent: history.Latest(room.history, s.joinHistory),
		Unread: room.UnreadFor(connectionID),
		Joined: joined,
	}, nil
}

// Member returns a room only if the connection belongs to it
func (s *Store) Member(connectionID, name string) (*Room, error) {
	room, exists := s.rooms[name]
	if !exists {
		return nil, ErrRoomNotFound
	}
	if !room.IsMember(connectionID) {
		return nil, ErrNotAMember
	}
	return room, nil
}

// LeaveOnDisconnect removes a connection from every room it belongs to
// FUNCTIONAL DISCOVERY: Membership, unread entry and typing entry go together
// so no room ever keeps state for a departed user
func (s *Store) LeaveOnDisconnect(connectionID, displayName string) []LeaveResult {
	var left []LeaveResult
	for _, name := range s.order {
		room := s.rooms[name]
		if !room.removeMember(connectionID) {
			continue
		}
		room.setTyping(displayName, false)
		left = append(left, LeaveResult{Room: room, Typing: room.Typing()})
	}
	return left
}

// SetTyping adds or removes a member's display name from the typing set
func (s *Store) SetTyping(connectionID, displayName, name string, isTyping bool) ([]string, error) {
	room, err := s.Member(connectionID, name)
	if err != nil {
		return nil, err
	}
	room.setTyping(displayName, isTyping)
	return room.Typing(), nil
}

// Append adds a message to a room's history
func (s *Store) Append(name string, msg *types.Message) error {
	room, exists := s.rooms[name]
	if !exists {
		return ErrRoomNotFound
	}
	room.append(msg)
	return nil
}

// IncrementUnread bumps every member's counter except the sender's
func (s *Store) IncrementUnread(name, exceptConnectionID string) (map[string]int, error) {
	room, exists := s.rooms[name]
	if !exists {
		return nil, ErrRoomNotFound
	}
	for _, id := range room.members {
		if id != exceptConnectionID {
			room.unread[id]++
		}
	}
	return room.Unread(), nil
}

// ResetUnread zeroes a member's counter when they view the room
func (s *Store) ResetUnread(name, connectionID string) (map[string]int, error) {
	room, err := s.Member(connectionID, name)
	if err != nil {
		return nil, err
	}
	room.unread[connectionID] = 0
	return room.Unread(), nil
}
