package crypto

import (
	"crypto/rand"
	"fmt"
)

// MediaKeySize is the length of a group call frame encryption secret.
const MediaKeySize = 32

// GenerateMediaKey returns a fresh group call media secret.
func GenerateMediaKey() ([]byte, error) {
	key := make([]byte, MediaKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate media key: %w", err)
	}
	return key, nil
}
