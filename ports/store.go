package ports

import (
	"context"
	"time"

	"github.com/prizepool/warden/core"
)

// NonceRegistry issues single-use, time-boxed nonces and consumes them on
// verification. Consume is atomic at-most-once: under a concurrent
// double-submit of the same value exactly one caller succeeds.
type NonceRegistry interface {
	// Issue produces a fresh unused nonce with the registry's TTL
	Issue(ctx context.Context) (core.Nonce, error)

	// Consume marks a nonce used. Returns core.ErrNonceNotFound,
	// core.ErrNonceAlreadyUsed or core.ErrNonceExpired on rejection.
	Consume(ctx context.Context, value string) error

	// Sweep removes entries past their expiry, regardless of used state,
	// and returns how many were evicted
	Sweep(ctx context.Context, now time.Time) int
}

// SessionStore owns authenticated sessions. All mutation goes through this
// API; concurrent creates never collide on session id.
type SessionStore interface {
	// Create mints a session for the address with the given TTL
	Create(ctx context.Context, address string, ttl time.Duration, opts core.SessionOptions) (*core.Session, error)

	// Get returns the session and refreshes its last-activity time.
	// Returns core.ErrSessionNotFound or core.ErrSessionExpired on rejection;
	// an expired session is removed as a side effect.
	Get(ctx context.Context, sessionID string) (*core.Session, error)

	// Update applies a partial mutation, reporting whether the session existed
	Update(ctx context.Context, sessionID string, update core.SessionUpdate) bool

	// Delete destroys a session; deleting an unknown id is a no-op
	Delete(ctx context.Context, sessionID string) error

	// Sweep removes sessions past their expiry and returns how many were evicted
	Sweep(ctx context.Context, now time.Time) int
}
