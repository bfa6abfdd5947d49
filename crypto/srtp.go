package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SRTP master key and salt sizes for AES_CM_128_HMAC_SHA1_80.
const (
	SRTPKeySize  = 16
	SRTPSaltSize = 14
)

const srtpKDFLabel = "callcore_srtp_key_kdf_v1"

// Role is the side of a call a device is on.
type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

// SRTPKey is one direction's master key and salt.
type SRTPKey struct {
	Key  []byte
	Salt []byte
}

// SRTPKeys are the keys a device uses to send and to receive.
type SRTPKeys struct {
	Send    SRTPKey
	Receive SRTPKey
}

// NegotiateSRTPKeys derives SRTP keys from the local key pair, the remote
// public key and both users' identity keys. The caller's identity key is
// always mixed in first, so both sides derive the same material.
func NegotiateSRTPKeys(local *KeyPair, remotePublic []byte, callerIdentityKey, calleeIdentityKey []byte, role Role) (*SRTPKeys, error) {
	log := NewLogger("NegotiateSRTPKeys").WithField("role", role)

	if len(callerIdentityKey) == 0 || len(calleeIdentityKey) == 0 {
		return nil, ErrMissingIdentityKey
	}
	peer, err := PublicKeyFromBytes(remotePublic)
	if err != nil {
		log.WithError(err, "validation", "parse remote key").Warn("Rejecting remote public key")
		return nil, fmt.Errorf("negotiate srtp keys: %w", err)
	}

	secret, err := DeriveSharedSecret(peer, local.Private)
	if err != nil {
		return nil, fmt.Errorf("negotiate srtp keys: %w", err)
	}
	defer ZeroBytes(secret[:])

	info := make([]byte, 0, len(srtpKDFLabel)+len(callerIdentityKey)+len(calleeIdentityKey))
	info = append(info, srtpKDFLabel...)
	info = append(info, callerIdentityKey...)
	info = append(info, calleeIdentityKey...)

	material := make([]byte, 2*(SRTPKeySize+SRTPSaltSize))
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret[:], nil, info), material); err != nil {
		return nil, fmt.Errorf("negotiate srtp keys: %w", err)
	}

	callerKey := splitKey(material[:SRTPKeySize+SRTPSaltSize])
	calleeKey := splitKey(material[SRTPKeySize+SRTPSaltSize:])

	log.Debug("SRTP keys derived")
	if role == RoleCaller {
		return &SRTPKeys{Send: callerKey, Receive: calleeKey}, nil
	}
	return &SRTPKeys{Send: calleeKey, Receive: callerKey}, nil
}

func splitKey(b []byte) SRTPKey {
	return SRTPKey{
		Key:  append([]byte{}, b[:SRTPKeySize]...),
		Salt: append([]byte{}, b[SRTPKeySize:]...),
	}
}

func (r Role) String() string {
	if r == RoleCaller {
		return "caller"
	}
	return "callee"
}
