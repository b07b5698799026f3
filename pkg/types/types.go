package types

import (
	"encoding/json"
	"time"
)

// DefaultRoom is created at startup and never destroyed
const DefaultRoom = "global"

// Inbound command types
// ARCHITECTURAL DISCOVERY: Command names match the event names clients already emit
// so the wire surface stays one event type per line
const (
	CommandJoin                = "join"
	CommandJoinRoom            = "joinRoom"
	CommandViewRoom            = "viewRoom"
	CommandSendMessage         = "sendMessage"
	CommandLoadOlderMessages   = "loadOlderMessages"
	CommandSendPrivateMessage  = "sendPrivateMessage"
	CommandLoadPrivateMessages = "loadPrivateMessages"
	CommandTyping              = "typing"
	CommandMarkAsRead          = "markAsRead"
	CommandReactToMessage      = "reactToMessage"
	CommandDisconnect          = "disconnect"
)

// Outbound event types
const (
	EventConnected      = "connected"
	EventUserOnline     = "userOnline"
	EventUserOffline    = "userOffline"
	EventRoomCreated    = "roomCreated"
	EventRoomJoined     = "roomJoined"
	EventUserJoinedRoom = "userJoinedRoom"
	EventUserLeftRoom   = "userLeftRoom"
	EventNotification   = "notification"
	EventNewMessage     = "newMessage"
	EventUnreadUpdate   = "unreadUpdate"
	EventOlderMessages  = "olderMessages"
	EventPrivateMessage = "privateMessage"
	EventPrivateHistory = "privateHistory"
	EventTypingUpdate   = "typingUpdate"
	EventMessageRead    = "messageRead"
	EventReactionUpdate = "reactionUpdate"
	EventError          = "error"
)

// Error codes carried by EventError payloads
const (
	ErrorCodeNameTaken          = "name_taken"
	ErrorCodeEmptyName          = "empty_name"
	ErrorCodeNameTooLong        = "name_too_long"
	ErrorCodeRecipientNotFound  = "recipient_not_found"
	ErrorCodeAttachmentTooLarge = "attachment_too_large"
	ErrorCodeRateLimited        = "rate_limited"
)

// Direction labels on private message views
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Envelope is the inbound wire frame
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is the outbound wire frame
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Message is a room or private chat message
// FUNCTIONAL DISCOVERY: Immutable after creation except Reactions and ReadBy,
// which only the messaging engine mutates
type Message struct {
	ID         string              `json:"id"`
	Sender     string              `json:"sender"`
	SenderID   string              `json:"senderId"`
	Receiver   string              `json:"receiver,omitempty"`
	Text       string              `json:"text"`
	Attachment json.RawMessage     `json:"file"`
	Timestamp  time.Time           `json:"timestamp"`
	Room       string              `json:"room,omitempty"`
	Reactions  map[string][]string `json:"reactions,omitempty"`
	ReadBy     []string            `json:"readBy,omitempty"`
	IsPrivate  bool                `json:"isPrivate,omitempty"`
	Direction  string              `json:"type,omitempty"`
}

// Clone returns a deep copy safe to hand to the transport
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Attachment != nil {
		c.Attachment = append(json.RawMessage(nil), m.Attachment...)
	}
	if m.ReadBy != nil {
		c.ReadBy = append([]string(nil), m.ReadBy...)
	}
	c.Reactions = CloneReactions(m.Reactions)
	return &c
}

// CloneReactions copies a reactions map including the reactor slices
func CloneReactions(reactions map[string][]string) map[string][]string {
	if reactions == nil {
		return nil
	}
	out := make(map[string][]string, len(reactions))
	for emoji, users := range reactions {
		out[emoji] = append([]string(nil), users...)
	}
	return out
}

// CloneMessages deep-copies a history slice
func CloneMessages(messages []*Message) []*Message {
	out := make([]*Message, len(messages))
	for i, m := range messages {
		out[i] = m.Clone()
	}
	return out
}

// Presence identifies a connected user
type Presence struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Notification is a human-readable room notice
type Notification struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Room    string `json:"room"`
}

// ErrorPayload describes a rejected command
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReactionRecord is an archived reaction toggle
type ReactionRecord struct {
	MessageID string    `json:"messageId"`
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	EmojiKey  string    `json:"emojiKey"`
	Added     bool      `json:"added"`
	Timestamp time.Time `json:"timestamp"`
}
