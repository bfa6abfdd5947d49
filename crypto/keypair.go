package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"
)

// KeySize is the length of X25519 public and private keys.
const KeySize = 32

// KeyPair is an ephemeral X25519 key pair created for one call.
type KeyPair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// GenerateKeyPair creates a new random X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	dh, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "GenerateKeyPair",
			"error":    err.Error(),
		}).Error("Failed to generate X25519 key pair")
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	if len(dh.Public) != KeySize || len(dh.Private) != KeySize {
		return nil, fmt.Errorf("generate key pair: %w", ErrInvalidKeyLength)
	}

	kp := &KeyPair{}
	copy(kp.Public[:], dh.Public)
	copy(kp.Private[:], dh.Private)
	ZeroBytes(dh.Private)
	return kp, nil
}

// PublicKeyFromBytes validates a public key received in an offer or answer.
func PublicKeyFromBytes(b []byte) ([KeySize]byte, error) {
	var key [KeySize]byte
	if len(b) != KeySize {
		return key, fmt.Errorf("%w: got %d bytes", ErrInvalidKeyLength, len(b))
	}
	copy(key[:], b)
	if isZeroKey(key) {
		return key, ErrZeroKey
	}
	return key, nil
}

// Wipe erases the private key.
func (kp *KeyPair) Wipe() {
	if kp != nil {
		ZeroBytes(kp.Private[:])
	}
}

func isZeroKey(key [KeySize]byte) bool {
	var acc byte
	for _, b := range key {
		acc |= b
	}
	return acc == 0
}
