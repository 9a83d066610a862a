package ports

import "context"

// RateLimiter caps verification attempts per identity within a rolling window.
// CheckAndRecord always increments the counter, rejects included, so a rejected
// identity cannot keep testing the window for free.
type RateLimiter interface {
	// CheckAndRecord records one attempt and returns core.ErrRateLimited once
	// the identity exceeds its ceiling for the current window
	CheckAndRecord(ctx context.Context, identity string) error
}
