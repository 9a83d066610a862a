package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/prizepool/warden/core"
	"github.com/prizepool/warden/ports"
)

// RedisSessionStore is a Redis implementation of the session store. Keys carry
// a grace period past the logical expiry so reads of a freshly expired session
// report Expired instead of NotFound.
type RedisSessionStore struct {
	client           *redis.Client
	prefix           string
	addrPrefix       string
	singlePerAddress bool
	logger           *zap.Logger
}

var _ ports.SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore creates a session store backed by the given Redis client
func NewRedisSessionStore(client *redis.Client, singlePerAddress bool, logger *zap.Logger) *RedisSessionStore {
	return &RedisSessionStore{
		client:           client,
		prefix:           "warden:session:",
		addrPrefix:       "warden:session:addr:",
		singlePerAddress: singlePerAddress,
		logger:           logger,
	}
}

// Create mints a session for the address
func (s *RedisSessionStore) Create(ctx context.Context, address string, ttl time.Duration, opts core.SessionOptions) (*core.Session, error) {
	if ttl <= 0 {
		ttl = core.DefaultSessionTTL
	}

	if s.singlePerAddress {
		if prev, err := s.client.Get(ctx, s.addrPrefix+address).Result(); err == nil && prev != "" {
			_ = s.client.Del(ctx, s.prefix+prev).Err()
		}
	}

	now := time.Now()
	session := &core.Session{
		Address:         address,
		IssuedAt:        now,
		ExpiresAt:       now.Add(ttl),
		LastActivity:    now,
		WorldIDVerified: opts.WorldIDVerified,
		Permissions:     append([]string(nil), opts.Permissions...),
	}

	// SetNX re-rolls on the (vanishingly unlikely) id collision
	for {
		id, err := core.NewSessionID()
		if err != nil {
			return nil, err
		}
		session.ID = id

		data, err := json.Marshal(session)
		if err != nil {
			return nil, fmt.Errorf("marshal session: %w", err)
		}

		ok, err := s.client.SetNX(ctx, s.prefix+id, data, ttl+evictionGrace).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to store session: %w", core.ErrStoreOperationFailed)
		}
		if ok {
			break
		}
	}

	if s.singlePerAddress {
		if err := s.client.Set(ctx, s.addrPrefix+address, session.ID, ttl+evictionGrace).Err(); err != nil {
			s.logger.Warn("failed to index session by address", zap.Error(err))
		}
	}

	return session, nil
}

// Get returns the session and refreshes its last-activity time
func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (*core.Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Expired(time.Now()) {
		if err := s.Delete(ctx, sessionID); err != nil {
			s.logger.Warn("failed to remove expired session", zap.Error(err))
		}
		return nil, core.ErrSessionExpired
	}

	session.LastActivity = time.Now()
	if err := s.save(ctx, session); err != nil {
		s.logger.Warn("failed to refresh session activity", zap.Error(err))
	}
	return session, nil
}

// Update applies a partial mutation to a live session
func (s *RedisSessionStore) Update(ctx context.Context, sessionID string, update core.SessionUpdate) bool {
	session, err := s.load(ctx, sessionID)
	if err != nil || session.Expired(time.Now()) {
		return false
	}

	if update.WorldIDVerified != nil {
		session.WorldIDVerified = *update.WorldIDVerified
	}
	if update.Permissions != nil {
		session.Permissions = append([]string(nil), update.Permissions...)
	}
	session.LastActivity = time.Now()

	if err := s.save(ctx, session); err != nil {
		s.logger.Error("failed to update session", zap.String("session_id", sessionID), zap.Error(err))
		return false
	}
	return true
}

// Delete destroys a session
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.prefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", core.ErrStoreOperationFailed)
	}
	return nil
}

// Sweep is a no-op for Redis: key expiration already bounds memory
func (s *RedisSessionStore) Sweep(ctx context.Context, now time.Time) int {
	return 0
}

func (s *RedisSessionStore) load(ctx context.Context, sessionID string) (*core.Session, error) {
	data, err := s.client.Get(ctx, s.prefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrSessionNotFound
		}
		return nil, core.ErrStoreOperationFailed
	}

	var session core.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) save(ctx context.Context, session *core.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt) + evictionGrace
	return s.client.Set(ctx, s.prefix+session.ID, data, ttl).Err()
}
