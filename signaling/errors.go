package signaling

import "errors"

// Payload errors.
var (
	// ErrDecode indicates an opaque payload could not be parsed.
	ErrDecode = errors.New("signaling payload decode failed")

	// ErrUnknownProtocolVersion indicates the requested representation is
	// not present in the payload.
	ErrUnknownProtocolVersion = errors.New("unknown signaled protocol version")
)

// Hangup errors.
var (
	// ErrUnknownHangupType indicates a hangup type outside the known range.
	ErrUnknownHangupType = errors.New("unknown hangup type")
)
