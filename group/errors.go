package group

import "errors"

// Client errors.
var (
	// ErrClosed indicates use of a client after Disconnect or Close.
	ErrClosed = errors.New("group client closed")

	// ErrMissingProof indicates a request that needs a membership proof.
	ErrMissingProof = errors.New("membership proof not available")
)

// SFU response errors.
var (
	// ErrBadResponse indicates an SFU response body that could not be parsed.
	ErrBadResponse = errors.New("malformed sfu response")

	// ErrUnexpectedStatus indicates an SFU response with an error status.
	ErrUnexpectedStatus = errors.New("unexpected sfu status")
)
