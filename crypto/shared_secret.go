package crypto

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
)

// DeriveSharedSecret computes the X25519 shared secret between a local
// private key and a remote public key.
func DeriveSharedSecret(peerPublicKey, privateKey [KeySize]byte) ([KeySize]byte, error) {
	var result [KeySize]byte

	privateCopy := privateKey
	defer ZeroBytes(privateCopy[:])

	secret, err := curve25519.X25519(privateCopy[:], peerPublicKey[:])
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":        "DeriveSharedSecret",
			"peer_key_prefix": fmt.Sprintf("%x", peerPublicKey[:8]),
			"error":           err.Error(),
		}).Warn("X25519 computation failed")
		return result, fmt.Errorf("derive shared secret: %w", err)
	}

	copy(result[:], secret)
	ZeroBytes(secret)
	return result, nil
}
