package rooms

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotAMember      = errors.New("connection is not a member of the room")
	ErrEmptyRoomName   = errors.New("room name required")
	ErrRoomNameTooLong = errors.New("room name exceeds 64 characters")
)
