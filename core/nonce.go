package core

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// DefaultNonceTTL is the default nonce validity duration
const DefaultNonceTTL = 10 * time.Minute

// Nonce is a single-use random challenge value
type Nonce struct {
	Value     string    // 64 hex characters (32 random bytes)
	IssuedAt  time.Time // When the nonce was issued
	ExpiresAt time.Time // When the nonce stops being acceptable
	Used      bool      // Set exactly once, atomically with verification
}

// Expired reports whether the nonce is past its TTL at the given instant
func (n Nonce) Expired(now time.Time) bool {
	return now.After(n.ExpiresAt)
}

// NewNonceValue generates 32 bytes of hex-encoded randomness
func NewNonceValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
