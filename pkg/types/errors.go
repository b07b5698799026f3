package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrMissingCommandType = errors.New("command type is required")
	ErrInvalidPayload     = errors.New("invalid command payload")
)
