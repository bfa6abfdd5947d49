package calling

import "errors"

// Entry point errors.
var (
	// ErrCallNotActive indicates a call id that does not match the active call.
	ErrCallNotActive = errors.New("call is not active")

	// ErrStaleCallID indicates an offer for a call that already exists or
	// has recently concluded.
	ErrStaleCallID = errors.New("stale call id")

	// ErrCallActive indicates an operation that needs no call in progress.
	ErrCallActive = errors.New("a call is already active")

	// ErrInvalidState indicates an operation the call's state does not allow.
	ErrInvalidState = errors.New("invalid call state for operation")

	// ErrManagerClosed indicates use of a closed manager.
	ErrManagerClosed = errors.New("manager closed")

	// ErrUnknownGroupClient indicates a client id that was never created or
	// has been deleted.
	ErrUnknownGroupClient = errors.New("unknown group call client")
)

// Resource errors. These end the triggering call with InternalFailure.
var (
	// ErrMissingExternal indicates a required host object was absent.
	ErrMissingExternal = errors.New("required external object missing")
)
