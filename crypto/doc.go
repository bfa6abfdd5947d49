// Package crypto implements the key agreement used by calls that run
// without DTLS.
//
// For V3 and V4 calls both sides put an ephemeral X25519 public key in
// their offer or answer. Once the answer arrives, each side computes the
// shared secret and expands it with HKDF-SHA256 into a pair of SRTP master
// keys, binding the result to the identity keys of both users:
//
//	caller: kp, _ := crypto.GenerateKeyPair()
//	        ... send kp.Public in the offer ...
//	        keys, err := crypto.NegotiateSRTPKeys(kp, answerKey, callerID, calleeID, crypto.RoleCaller)
//
// The caller's send key is the callee's receive key and vice versa.
//
// The package also generates group call media keys and carries the
// TimeProvider used across the module for deterministic tests.
package crypto
