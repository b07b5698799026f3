package types

import (
	"bytes"
	"encoding/json"
)

// JoinPayload accepts either a bare JSON string or {"displayName": "..."}
type JoinPayload struct {
	DisplayName string `json:"displayName"`
}

func (p *JoinPayload) UnmarshalJSON(data []byte) error {
	if s, ok := bareString(data); ok {
		p.DisplayName = s
		return nil
	}
	type plain JoinPayload
	return json.Unmarshal(data, (*plain)(p))
}

// RoomPayload names a room for joinRoom and viewRoom
type RoomPayload struct {
	RoomName string `json:"roomName"`
}

func (p *RoomPayload) UnmarshalJSON(data []byte) error {
	if s, ok := bareString(data); ok {
		p.RoomName = s
		return nil
	}
	type plain RoomPayload
	return json.Unmarshal(data, (*plain)(p))
}

type SendMessagePayload struct {
	RoomName   string          `json:"roomName"`
	Text       string          `json:"text"`
	Attachment json.RawMessage `json:"attachment,omitempty"`
}

type LoadOlderMessagesPayload struct {
	RoomName        string `json:"roomName"`
	BeforeMessageID string `json:"beforeMessageId,omitempty"`
	Limit           int    `json:"limit,omitempty"`
}

type SendPrivateMessagePayload struct {
	ToDisplayName string          `json:"toDisplayName"`
	Text          string          `json:"text"`
	Attachment    json.RawMessage `json:"attachment,omitempty"`
}

type LoadPrivateMessagesPayload struct {
	WithDisplayName string `json:"withDisplayName"`
	BeforeMessageID string `json:"beforeMessageId,omitempty"`
	Limit           int    `json:"limit,omitempty"`
}

type TypingPayload struct {
	RoomName string `json:"roomName"`
	IsTyping bool   `json:"isTyping"`
}

// MarkAsReadPayload accepts either a bare message id or {"messageId": "..."}
type MarkAsReadPayload struct {
	MessageID string `json:"messageId"`
}

func (p *MarkAsReadPayload) UnmarshalJSON(data []byte) error {
	if s, ok := bareString(data); ok {
		p.MessageID = s
		return nil
	}
	type plain MarkAsReadPayload
	return json.Unmarshal(data, (*plain)(p))
}

type ReactToMessagePayload struct {
	MessageID string `json:"messageId"`
	EmojiKey  string `json:"emojiKey"`
}

// Outbound payloads

type ConnectedPayload struct {
	UserID      string     `json:"userId"`
	Username    string     `json:"username"`
	OnlineUsers []Presence `json:"onlineUsers"`
	Rooms       []string   `json:"rooms"`
	ActiveRoom  string     `json:"activeRoom"`
	Messages    []*Message `json:"messages"`
	Unread      int        `json:"unread"`
}

type RoomJoinedPayload struct {
	RoomName string     `json:"roomName"`
	Messages []*Message `json:"messages"`
	Members  []Presence `json:"members"`
	Unread   int        `json:"unread"`
}

type RoomMemberPayload struct {
	RoomName string `json:"roomName"`
	Username string `json:"username"`
}

type UnreadUpdatePayload struct {
	Room   string         `json:"room"`
	Unread map[string]int `json:"unread"`
}

// OlderMessagesPayload carries the applied limit; hasMore is false once the
// oldest message has been sent
type OlderMessagesPayload struct {
	Room     string     `json:"room"`
	Messages []*Message `json:"messages"`
	Limit    int        `json:"limit"`
	HasMore  bool       `json:"hasMore"`
}

type PrivateHistoryPayload struct {
	With     string     `json:"with"`
	Messages []*Message `json:"messages"`
	Limit    int        `json:"limit"`
	HasMore  bool       `json:"hasMore"`
}

type TypingUpdatePayload struct {
	Room        string   `json:"room"`
	TypingUsers []string `json:"typingUsers"`
}

type MessageReadPayload struct {
	MessageID string   `json:"messageId"`
	ReaderID  string   `json:"readerId"`
	Room      string   `json:"room"`
	ReadBy    []string `json:"readBy"`
}

type ReactionUpdatePayload struct {
	MessageID string              `json:"messageId"`
	Room      string              `json:"room"`
	Reactions map[string][]string `json:"reactions"`
}

// bareString reports whether data is a JSON string literal and decodes it
func bareString(data []byte) (string, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", false
	}
	return s, true
}
