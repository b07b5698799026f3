// Package messaging constructs, stores and mutates chat message records.
package messaging

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatrelay/internal/rooms"
	"chatrelay/pkg/types"
)

// MaxReactionKeyLength bounds emoji keys in bytes
const MaxReactionKeyLength = 32

// DefaultMaxAttachmentBytes applies when Options leaves the limit unset
const DefaultMaxAttachmentBytes = 5 << 20

// Options configures an Engine
type Options struct {
	// AllowedReactions closes the reaction vocabulary when non-empty
	AllowedReactions []string
	// MaxAttachmentBytes bounds the encoded attachment size
	MaxAttachmentBytes int
	// NewID and Now are overridable for tests
	NewID func() string
	Now   func() time.Time
}

// Engine owns room message records and the id index used by read receipts and reactions
// ARCHITECTURAL DISCOVERY: Not safe for concurrent use; the hub goroutine is the single owner
type Engine struct {
	rooms         *rooms.Store
	index         map[string]indexEntry
	allowed       map[string]struct{}
	maxAttachment int
	newID         func() string
	now           func() time.Time
}

type indexEntry struct {
	room    string
	message *types.Message
}

// PostResult is the outcome of a room send
type PostResult struct {
	Message *types.Message
	Room    *rooms.Room
	Unread  map[string]int
}

// ReadResult is the outcome of a read receipt that changed state
type ReadResult struct {
	Room    string
	Message *types.Message
}

// ReactionResult is the outcome of a reaction toggle
type ReactionResult struct {
	Room      string
	MessageID string
	Reactions map[string][]string
	Added     bool
}

// NewEngine creates an engine over a room store
func NewEngine(store *rooms.Store, opts Options) (*Engine, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	e := &Engine{
		rooms:         store,
		index:         make(map[string]indexEntry),
		maxAttachment: opts.MaxAttachmentBytes,
		newID:         opts.NewID,
		now:           opts.Now,
	}
	if e.maxAttachment <= 0 {
		e.maxAttachment = DefaultMaxAttachmentBytes
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.now == nil {
		e.now = time.Now
	}
	if len(opts.AllowedReactions) > 0 {
		e.allowed = make(map[string]struct{}, len(opts.AllowedReactions))
		for _, key := range opts.AllowedReactions {
			e.allowed[key] = struct{}{}
		}
	}
	return e, nil
}

// Compose builds a new message record without storing it
// FUNCTIONAL DISCOVERY: Server assigns id and timestamp; readBy starts with the sender
func (e *Engine) Compose(senderConnectionID, senderName, text string, attachment json.RawMessage) (*types.Message, error) {
	text = strings.TrimSpace(text)
	hasAttachment := types.HasAttachment(attachment)
	if text == "" && !hasAttachment {
		return nil, ErrEmptyMessage
	}
	if hasAttachment && len(attachment) > e.maxAttachment {
		return nil, ErrAttachmentTooLarge
	}

	msg := &types.Message{
		ID:        e.newID(),
		Sender:    senderName,
		SenderID:  senderConnectionID,
		Text:      text,
		Timestamp: e.now().UTC(),
	}
	if hasAttachment {
		msg.Attachment = append(json.RawMessage(nil), attachment...)
	}
	return msg, nil
}

// PostToRoom appends a message to a room the sender belongs to
func (e *Engine) PostToRoom(connectionID, senderName, roomName, text string, attachment json.RawMessage) (PostResult, error) {
	room, err := e.rooms.Member(connectionID, roomName)
	if err != nil {
		return PostResult{}, err
	}

	msg, err := e.Compose(connectionID, senderName, text, attachment)
	if err != nil {
		return PostResult{}, err
	}
	msg.Room = roomName
	msg.Reactions = make(map[string][]string)
	msg.ReadBy = []string{connectionID}

	if err := e.rooms.Append(roomName, msg); err != nil {
		return PostResult{}, err
	}
	e.index[msg.ID] = indexEntry{room: roomName, message: msg}

	unread, err := e.rooms.IncrementUnread(roomName, connectionID)
	if err != nil {
		return PostResult{}, err
	}

	return PostResult{Message: msg, Room: room, Unread: unread}, nil
}

// Lookup finds a room message by id
func (e *Engine) Lookup(messageID string) (*types.Message, string, bool) {
	entry, ok := e.index[messageID]
	if !ok {
		return nil, "", false
	}
	return entry.message, entry.room, true
}

// MarkRead adds a reader to a room message; changed is false when already read
func (e *Engine) MarkRead(connectionID, messageID string) (ReadResult, bool, error) {
	entry, ok := e.index[messageID]
	if !ok {
		return ReadResult{}, false, ErrMessageNotFound
	}

	msg := entry.message
	for _, id := range msg.ReadBy {
		if id == connectionID {
			return ReadResult{Room: entry.room, Message: msg}, false, nil
		}
	}
	msg.ReadBy = append(msg.ReadBy, connectionID)
	return ReadResult{Room: entry.room, Message: msg}, true, nil
}

// ToggleReaction adds or removes a user's reaction under an emoji key
// FUNCTIONAL DISCOVERY: An emptied reactor set deletes its key so a toggle pair
// restores the reactions map exactly
func (e *Engine) ToggleReaction(displayName, messageID, emojiKey string) (ReactionResult, error) {
	if err := e.ValidateReaction(emojiKey); err != nil {
		return ReactionResult{}, err
	}
	entry, ok := e.index[messageID]
	if !ok {
		return ReactionResult{}, ErrMessageNotFound
	}

	msg := entry.message
	if msg.Reactions == nil {
		msg.Reactions = make(map[string][]string)
	}

	reactors := msg.Reactions[emojiKey]
	added := true
	for i, name := range reactors {
		if name == displayName {
			reactors = append(reactors[:i], reactors[i+1:]...)
			added = false
			break
		}
	}
	if added {
		reactors = append(reactors, displayName)
	}

	if len(reactors) == 0 {
		delete(msg.Reactions, emojiKey)
	} else {
		msg.Reactions[emojiKey] = reactors
	}

	return ReactionResult{
		Room:      entry.room,
		MessageID: messageID,
		Reactions: types.CloneReactions(msg.Reactions),
		Added:     added,
	}, nil
}

// ValidateReaction checks an emoji key against length bounds and the vocabulary
func (e *Engine) ValidateReaction(emojiKey string) error {
	if emojiKey == "" || len(emojiKey) > MaxReactionKeyLength {
		return ErrInvalidReaction
	}
	if e.allowed != nil {
		if _, ok := e.allowed[emojiKey]; !ok {
			return ErrReactionNotAllowed
		}
	}
	return nil
}

// Count returns the number of indexed room messages
func (e *Engine) Count() int {
	return len(e.index)
}
