// Package limits provides the size limits applied to untrusted input
// arriving from the signaling transport and the SFU.
//
// # Limits
//
//   - MaxOpaqueSignaling (128 KiB): an offer, answer or ICE candidate payload.
//     Legacy offers embed a full SDP, so this is generous.
//
//   - MaxIceCandidatesPerMessage (64): candidates in one Ice message.
//
//   - MaxCallMessage (8 KiB): an opaque group call message such as a media key.
//
//   - MaxPendingMediaKeys (32): group media keys held for devices the
//     client has not seen in a peek yet.
//
//   - MaxProcessingBuffer (1 MiB): the absolute maximum for any input,
//     including HTTP response bodies from the SFU.
//
// # Validation Functions
//
// Each validation function checks for empty input and size violations:
//
//	if err := limits.ValidateOpaque(opaque); err != nil {
//	    return fmt.Errorf("received offer: %w", err)
//	}
//
// Errors wrap ErrMessageEmpty or ErrMessageTooLarge for errors.Is checks.
package limits
