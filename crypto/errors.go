package crypto

import "errors"

var (
	// ErrInvalidKeyLength indicates a key that is not KeySize bytes long.
	ErrInvalidKeyLength = errors.New("invalid key length")

	// ErrZeroKey indicates an all-zero public key.
	ErrZeroKey = errors.New("public key is all zeros")

	// ErrMissingIdentityKey indicates SRTP keys were requested without
	// both identity keys.
	ErrMissingIdentityKey = errors.New("identity key missing")
)
