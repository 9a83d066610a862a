package limiter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prizepool/warden/core"
	"github.com/prizepool/warden/ports"
)

const (
	// DefaultMaxAttempts is the verification attempt ceiling per identity
	DefaultMaxAttempts = 10

	// DefaultWindow is the fixed window the ceiling applies to
	DefaultWindow = 15 * time.Minute
)

type record struct {
	attempts      int
	windowResetAt time.Time
}

// MemoryRateLimiter caps attempts per identity within a fixed window. The
// counter moves on every check, rejects included.
type MemoryRateLimiter struct {
	mu          sync.Mutex
	records     map[string]*record
	maxAttempts int
	window      time.Duration
	logger      *zap.Logger
}

var _ ports.RateLimiter = (*MemoryRateLimiter)(nil)

// NewMemoryRateLimiter creates a limiter; non-positive arguments fall back to defaults
func NewMemoryRateLimiter(maxAttempts int, window time.Duration, logger *zap.Logger) *MemoryRateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryRateLimiter{
		records:     make(map[string]*record),
		maxAttempts: maxAttempts,
		window:      window,
		logger:      logger,
	}
}

// CheckAndRecord records one attempt for the identity
func (l *MemoryRateLimiter) CheckAndRecord(ctx context.Context, identity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	rec, ok := l.records[identity]
	if !ok || now.After(rec.windowResetAt) {
		l.records[identity] = &record{attempts: 1, windowResetAt: now.Add(l.window)}
		return nil
	}

	rec.attempts++
	if rec.attempts > l.maxAttempts {
		if l.logger != nil {
			l.logger.Warn("verification attempts exceeded",
				zap.String("identity", identity),
				zap.Int("attempts", rec.attempts),
			)
		}
		return core.ErrRateLimited
	}
	return nil
}
