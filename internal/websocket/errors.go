package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection     = errors.New("connection cannot be nil")
	ErrEmptyConnectionID = errors.New("connection id cannot be empty")
	ErrDuplicateID       = errors.New("connection id already registered")
)

// Handler-related errors
var (
	ErrNilSubmitter = errors.New("command submitter cannot be nil")
	ErrNilRegistry  = errors.New("registry cannot be nil")
)
