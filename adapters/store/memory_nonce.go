package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prizepool/warden/core"
	"github.com/prizepool/warden/ports"
)

// MemoryNonceRegistry is an in-memory implementation of the nonce registry.
// Consumed nonces stay marked used until the sweep so a replayed message is
// rejected with AlreadyUsed rather than NotFound.
type MemoryNonceRegistry struct {
	mu     sync.Mutex
	nonces map[string]*core.Nonce
	ttl    time.Duration
	logger *zap.Logger
}

var _ ports.NonceRegistry = (*MemoryNonceRegistry)(nil)

// NewMemoryNonceRegistry creates a registry with the given nonce TTL
func NewMemoryNonceRegistry(ttl time.Duration, logger *zap.Logger) *MemoryNonceRegistry {
	if ttl <= 0 {
		ttl = core.DefaultNonceTTL
	}
	return &MemoryNonceRegistry{
		nonces: make(map[string]*core.Nonce),
		ttl:    ttl,
		logger: logger,
	}
}

// Issue produces a fresh unused nonce
func (r *MemoryNonceRegistry) Issue(ctx context.Context) (core.Nonce, error) {
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

	r.mu.Lock()
	r.nonces[value] = &nonce
	r.mu.Unlock()

	return nonce, nil
}

// Consume marks a nonce used, at most once
func (r *MemoryNonceRegistry) Consume(ctx context.Context, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	nonce, ok := r.nonces[value]
	if !ok {
		return core.ErrNonceNotFound
	}
	if nonce.Used {
		return core.ErrNonceAlreadyUsed
	}
	if nonce.Expired(time.Now()) {
		return core.ErrNonceExpired
	}

	nonce.Used = true
	return nil
}

// Sweep removes entries past their expiry regardless of used state
func (r *MemoryNonceRegistry) Sweep(ctx context.Context, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for value, nonce := range r.nonces {
		if nonce.Expired(now) {
			delete(r.nonces, value)
			evicted++
		}
	}

	if evicted > 0 && r.logger != nil {
		r.logger.Debug("nonce sweep completed", zap.Int("evicted", evicted))
	}
	return evicted
}

// Len returns the number of tracked nonces, used for tests
func (r *MemoryNonceRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nonces)
}
