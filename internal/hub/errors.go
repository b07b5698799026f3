package hub

import "errors"

var (
	ErrHubAlreadyRunning  = errors.New("hub is already running")
	ErrHubNotRunning      = errors.New("hub is not running")
	ErrCommandChannelFull = errors.New("command channel is full")
	ErrNilRouter          = errors.New("router cannot be nil")
	ErrNilConnections     = errors.New("connection lookup cannot be nil")
)
