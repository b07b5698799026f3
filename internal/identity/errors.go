package identity

import "errors"

var (
	ErrEmptyName         = errors.New("display name required")
	ErrNameTaken         = errors.New("display name taken")
	ErrNameTooLong       = errors.New("display name exceeds 64 characters")
	ErrAlreadyIdentified = errors.New("connection already identified")
	ErrEmptyConnectionID = errors.New("connection id cannot be empty")
)
