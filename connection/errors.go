package connection

import "errors"

var (
	// ErrNotReady indicates an operation that needs the media session
	// before one has been bound.
	ErrNotReady = errors.New("connection has no media session")

	// ErrAlreadyBound indicates a second media session for one connection.
	ErrAlreadyBound = errors.New("connection already has a media session")

	// ErrClosed indicates an operation on a closed connection.
	ErrClosed = errors.New("connection closed")
)
