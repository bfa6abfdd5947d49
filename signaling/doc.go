// Package signaling defines the messages exchanged between the devices of a
// one-to-one call and the opaque payload format carried inside them.
//
// # Message Types
//
// A call is negotiated with five message kinds:
//
//   - Offer: the caller's connection parameters, sent to every device of the callee
//   - Answer: the callee's connection parameters, sent to the caller's device
//   - Ice: one or more ICE candidates
//   - Hangup: the end of a call, optionally naming the device that decided it
//   - Busy: the callee is already in another call
//
// # Protocol Versions
//
// Offers and answers carry an opaque blob encoded with the protobuf wire
// format. The blob can hold a legacy (V2/V3) representation built around an
// SDP string, a V4 representation built from explicit ICE credentials and
// codec lists, or both. The version of a payload is derived from which
// representations are present:
//
//	v4 present                      -> V4
//	v3_or_v2 with a public key      -> V3
//	anything else                   -> V2
//
// Accessors never downgrade silently. Asking for a representation that is
// not present returns ErrUnknownProtocolVersion.
//
// # Logging
//
// ToInfoString renders a message for logs without ever including SDP or
// ICE credentials.
package signaling
