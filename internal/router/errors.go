package router

import "errors"

var (
	ErrUnknownCommand    = errors.New("unknown command type")
	ErrNotIdentified     = errors.New("connection has not joined")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrEmptyRecipient    = errors.New("private message missing recipient")
	ErrNilDependency     = errors.New("router dependency cannot be nil")
)
