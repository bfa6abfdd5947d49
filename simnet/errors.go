package simnet

import "errors"

var (
	// ErrDuplicateDevice is returned when a user already has a device with
	// the requested id.
	ErrDuplicateDevice = errors.New("device already on network")

	// ErrUnknownUser is returned when signaling names a user with no
	// devices.
	ErrUnknownUser = errors.New("unknown user")

	// ErrNoActiveCall is returned by device helpers that need a call.
	ErrNoActiveCall = errors.New("no active call")

	// ErrNotSettled is returned when the network keeps producing work past
	// the settle limit.
	ErrNotSettled = errors.New("network did not settle")

	// ErrUnknownScenario is returned for a scenario name that is not
	// registered.
	ErrUnknownScenario = errors.New("unknown scenario")
)

// ErrExpectation is returned by a scenario whose outcome differs from
// what the protocol requires.
var ErrExpectation = errors.New("scenario expectation failed")
