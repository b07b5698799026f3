package router

import "chatrelay/pkg/types"

// RoomSummary is the read-only catalog entry for one room
type RoomSummary struct {
	Name     string `json:"name"`
	Members  int    `json:"members"`
	Messages int    `json:"messages"`
	Typing   int    `json:"typing"`
}

// Snapshot is a point-in-time copy of the chat state for HTTP queries
type Snapshot struct {
	Rooms           []RoomSummary    `json:"rooms"`
	Users           []types.Presence `json:"users"`
	DirectThreads   int              `json:"directThreads"`
	IndexedMessages int              `json:"indexedMessages"`
}

// Snapshot copies current counts; call only from the goroutine that owns the router
func (r *Router) Snapshot() Snapshot {
	summaries := make([]RoomSummary, 0, len(r.rooms.Names()))
	for _, room := range r.rooms.Rooms() {
		summaries = append(summaries, RoomSummary{
			Name:     room.Name(),
			Members:  len(room.Members()),
			Messages: room.Len(),
			Typing:   len(room.Typing()),
		})
	}
	return Snapshot{
		Rooms:           summaries,
		Users:           r.users.Online(),
		DirectThreads:   r.direct.Threads(),
		IndexedMessages: r.messages.Count(),
	}
}
