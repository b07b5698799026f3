// Package direct keeps one-to-one message threads between display names.
package direct

import (
	"encoding/json"
	"sort"
	"strings"

	"chatrelay/internal/identity"
	"chatrelay/pkg/types"
)

// Directory resolves display names to identified users
type Directory interface {
	LookupName(name string) (*identity.User, bool)
}

// Composer builds a validated message record
type Composer func(senderConnectionID, senderName, text string, attachment json.RawMessage) (*types.Message, error)

// Delivery carries both views of a private message
type Delivery struct {
	Sent                  *types.Message
	Received              *types.Message
	RecipientConnectionID string
}

// Store holds private threads keyed by the canonical name pair
// ARCHITECTURAL DISCOVERY: Threads are keyed by display name, so a user who
// reconnects under the same name sees the same thread
type Store struct {
	directory Directory
	compose   Composer
	threads   map[string][]*types.Message
}

// NewStore creates a direct message store
func NewStore(directory Directory, compose Composer) (*Store, error) {
	if directory == nil {
		return nil, ErrNilDirectory
	}
	if compose == nil {
		return nil, ErrNilComposer
	}
	return &Store{
		directory: directory,
		compose:   compose,
		threads:   make(map[string][]*types.Message),
	}, nil
}

// ThreadKey returns the order-independent key for a pair of names
func ThreadKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

// Send appends a message to the thread between from and the named recipient
func (s *Store) Send(from *identity.User, toDisplayName, text string, attachment json.RawMessage) (Delivery, error) {
	toName := identity.NormalizeName(toDisplayName)
	recipient, ok := s.directory.LookupName(toName)
	if !ok {
		return Delivery{}, ErrRecipientNotFound
	}

	msg, err := s.compose(from.ConnectionID, from.DisplayName, text, attachment)
	if err != nil {
		return Delivery{}, err
	}
	msg.Receiver = recipient.DisplayName
	msg.IsPrivate = true

	key := ThreadKey(from.DisplayName, recipient.DisplayName)
	s.threads[key] = append(s.threads[key], msg)

	return Delivery{
		Sent:                  view(msg, types.DirectionSent),
		Received:              view(msg, types.DirectionReceived),
		RecipientConnectionID: recipient.ConnectionID,
	}, nil
}

// History returns the thread between two names, oldest first
func (s *Store) History(a, b string) []*types.Message {
	return s.threads[ThreadKey(a, b)]
}

// Threads returns the number of non-empty threads
func (s *Store) Threads() int {
	return len(s.threads)
}

func view(msg *types.Message, direction string) *types.Message {
	v := msg.Clone()
	v.Direction = direction
	return v
}
