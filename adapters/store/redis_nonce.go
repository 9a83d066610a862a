package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/prizepool/warden/core"
	"github.com/prizepool/warden/ports"
)

// evictionGrace keeps consumed and expired nonce keys around past their
// logical expiry so Consume can distinguish Expired and AlreadyUsed from
// NotFound. The sweep for these keys is Redis key expiration itself.
const evictionGrace = time.Hour

// consumeScript atomically transitions a nonce to used. The stored value is
// the expiry in unix milliseconds while unused, and "used" afterwards.
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return 'not_found'
end
if v == 'used' then
  return 'already_used'
end
if tonumber(v) < tonumber(ARGV[1]) then
  return 'expired'
end
redis.call('SET', KEYS[1], 'used', 'KEEPTTL')
return 'ok'
`)

// RedisNonceRegistry is a Redis implementation of the nonce registry for
// multi-instance deployments.
type RedisNonceRegistry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

var _ ports.NonceRegistry = (*RedisNonceRegistry)(nil)

// NewRedisNonceRegistry creates a registry backed by the given Redis client
func NewRedisNonceRegistry(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisNonceRegistry {
	if ttl <= 0 {
		ttl = core.DefaultNonceTTL
	}
	return &RedisNonceRegistry{
		client: client,
		prefix: "warden:nonce:",
		ttl:    ttl,
		logger: logger,
	}
}

// Issue produces a fresh unused nonce
func (r *RedisNonceRegistry) Issue(ctx context.Context) (core.Nonce, error) {
	value, err := core.NewNonceValue()
	if err != nil {
		return core.Nonce{}, err
	}

	now := time.Now()
	nonce := core.Nonce{
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(r.ttl),
	}

	key := r.prefix + value
	expiresMs := strconv.FormatInt(nonce.ExpiresAt.UnixMilli(), 10)
	if err := r.client.Set(ctx, key, expiresMs, r.ttl+evictionGrace).Err(); err != nil {
		return core.Nonce{}, fmt.Errorf("failed to store nonce: %w", core.ErrStoreOperationFailed)
	}

	return nonce, nil
}

// Consume marks a nonce used, at most once across all instances
func (r *RedisNonceRegistry) Consume(ctx context.Context, value string) error {
	key := r.prefix + value
	nowMs := strconv.FormatInt(time.Now().UnixMilli(), 10)

	result, err := consumeScript.Run(ctx, r.client, []string{key}, nowMs).Text()
	if err != nil {
		r.logger.Error("nonce consume script failed", zap.Error(err))
		return core.ErrStoreOperationFailed
	}

	switch result {
	case "ok":
		return nil
	case "already_used":
		return core.ErrNonceAlreadyUsed
	case "expired":
		return core.ErrNonceExpired
	default:
		return core.ErrNonceNotFound
	}
}

// Sweep is a no-op for Redis: key expiration already bounds memory
func (r *RedisNonceRegistry) Sweep(ctx context.Context, now time.Time) int {
	return 0
}
