package direct

import "errors"

var (
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrNilComposer       = errors.New("composer cannot be nil")
	ErrNilDirectory      = errors.New("directory cannot be nil")
)
