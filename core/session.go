package core

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// DefaultSessionTTL is the default session validity duration
const DefaultSessionTTL = 24 * time.Hour

// Session represents an authenticated wallet
type Session struct {
	ID              string    `json:"id"`                // Opaque bearer token, 32 random bytes hex-encoded
	Address         string    `json:"address"`           // Ethereum address of the user
	IssuedAt        time.Time `json:"issued_at"`         // When the session was created
	ExpiresAt       time.Time `json:"expires_at"`        // IssuedAt + TTL
	LastActivity    time.Time `json:"last_activity"`     // Refreshed on every successful read
	WorldIDVerified bool      `json:"world_id_verified"` // Personhood proof flag
	Permissions     []string  `json:"permissions"`       // Granted permission names
}

// Expired reports whether the session is past its TTL at the given instant
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// HasPermission reports whether the session carries the named permission
func (s Session) HasPermission(name string) bool {
	for _, p := range s.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// SessionUpdate is a partial mutation applied through the store's update API
type SessionUpdate struct {
	WorldIDVerified *bool    `json:"world_id_verified,omitempty"`
	Permissions     []string `json:"permissions,omitempty"`
}

// SessionOptions carries optional attributes for session creation
type SessionOptions struct {
	WorldIDVerified bool
	Permissions     []string
}

// NewSessionID generates an unguessable opaque session identifier
func NewSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
