package messaging

import "errors"

var (
	ErrMessageNotFound    = errors.New("message not found")
	ErrEmptyMessage       = errors.New("message has no text or attachment")
	ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")
	ErrInvalidReaction    = errors.New("reaction key must be 1-32 bytes")
	ErrReactionNotAllowed = errors.New("reaction key not in vocabulary")
	ErrNilStore           = errors.New("room store cannot be nil")
)
