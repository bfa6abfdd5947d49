package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxOpaqueSignaling is the largest offer, answer or candidate payload accepted.
	MaxOpaqueSignaling = 128 * 1024

	// MaxIceCandidatesPerMessage caps one ICE batch.
	MaxIceCandidatesPerMessage = 64

	// MaxCallMessage is the largest opaque group call message accepted.
	MaxCallMessage = 8 * 1024

	// MaxPendingMediaKeys caps media keys held for devices not yet in the roster.
	MaxPendingMediaKeys = 32

	// MaxProcessingBuffer is the absolute maximum for any operation (1MB limit).
	MaxProcessingBuffer = 1024 * 1024
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")

	// ErrTooManyCandidates indicates an ICE batch above MaxIceCandidatesPerMessage.
	ErrTooManyCandidates = errors.New("too many ice candidates")
)

// ValidateMessageSize validates a message against the specified maximum size.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateOpaque validates an offer or answer payload. Empty payloads are
// allowed because an empty offer is a valid V2 offer with no parameters.
func ValidateOpaque(opaque []byte) error {
	if len(opaque) > MaxOpaqueSignaling {
		return fmt.Errorf("%w: opaque size %d exceeds limit %d", ErrMessageTooLarge, len(opaque), MaxOpaqueSignaling)
	}
	return nil
}

// ValidateIceBatch validates the number of candidates and each candidate's size.
func ValidateIceBatch(sizes []int) error {
	if len(sizes) > MaxIceCandidatesPerMessage {
		return fmt.Errorf("%w: %d exceeds limit %d", ErrTooManyCandidates, len(sizes), MaxIceCandidatesPerMessage)
	}
	for i, size := range sizes {
		if size > MaxOpaqueSignaling {
			return fmt.Errorf("%w: candidate %d size %d exceeds limit %d", ErrMessageTooLarge, i, size, MaxOpaqueSignaling)
		}
	}
	return nil
}

// ValidateCallMessage validates an opaque group call message.
func ValidateCallMessage(message []byte) error {
	return ValidateMessageSize(message, MaxCallMessage)
}

// ValidateProcessingBuffer validates data against MaxProcessingBuffer.
// Empty data is allowed; HTTP responses may have no body.
func ValidateProcessingBuffer(data []byte) error {
	if len(data) > MaxProcessingBuffer {
		return fmt.Errorf("%w: buffer size %d exceeds limit %d", ErrMessageTooLarge, len(data), MaxProcessingBuffer)
	}
	return nil
}
