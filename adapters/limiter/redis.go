package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/prizepool/warden/core"
	"github.com/prizepool/warden/ports"
)

// RedisRateLimiter is a Redis implementation for multi-instance deployments.
// INCR moves the counter on every check; the window is anchored by the key TTL
// set when the counter starts.
type RedisRateLimiter struct {
	client      *redis.Client
	prefix      string
	maxAttempts int
	window      time.Duration
	logger      *zap.Logger
}

var _ ports.RateLimiter = (*RedisRateLimiter)(nil)

// NewRedisRateLimiter creates a limiter backed by the given Redis client
func NewRedisRateLimiter(client *redis.Client, maxAttempts int, window time.Duration, logger *zap.Logger) *RedisRateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisRateLimiter{
		client:      client,
		prefix:      "warden:ratelimit:",
		maxAttempts: maxAttempts,
		window:      window,
		logger:      logger,
	}
}

// CheckAndRecord records one attempt for the identity
func (l *RedisRateLimiter) CheckAndRecord(ctx context.Context, identity string) error {
	key := l.prefix + identity

	attempts, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", core.ErrStoreOperationFailed)
	}
	if attempts == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			l.logger.Warn("failed to set rate limit window", zap.Error(err))
		}
	}

	if int(attempts) > l.maxAttempts {
		l.logger.Warn("verification attempts exceeded",
			zap.String("identity", identity),
			zap.Int64("attempts", attempts),
		)
		return core.ErrRateLimited
	}
	return nil
}
