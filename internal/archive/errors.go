package archive

import "errors"

var (
	ErrEmptyPath     = errors.New("archive path cannot be empty")
	ErrClosed        = errors.New("archive is closed")
	ErrWriteTimeout  = errors.New("archive write timeout")
	ErrNilRecord     = errors.New("archive record is nil")
	ErrInvalidConfig = errors.New("invalid archive configuration")
)
