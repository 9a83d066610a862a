package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prizepool/warden/core"
	"github.com/prizepool/warden/ports"
)

// MemorySessionStore is an in-memory implementation of the session store
type MemorySessionStore struct {
	mu               sync.Mutex
	sessions         map[string]*core.Session
	singlePerAddress bool
	logger           *zap.Logger
}

var _ ports.SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates a session store. When singlePerAddress is set,
// creating a session evicts any previous sessions for the same address.
func NewMemorySessionStore(singlePerAddress bool, logger *zap.Logger) *MemorySessionStore {
	return &MemorySessionStore{
		sessions:         make(map[string]*core.Session),
		singlePerAddress: singlePerAddress,
		logger:           logger,
	}
}

// Create mints a session for the address
func (s *MemorySessionStore) Create(ctx context.Context, address string, ttl time.Duration, opts core.SessionOptions) (*core.Session, error) {
	if ttl <= 0 {
		ttl = core.DefaultSessionTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.singlePerAddress {
		for id, existing := range s.sessions {
			if existing.Address == address {
				delete(s.sessions, id)
			}
		}
	}

	var id string
	for {
		var err error
		id, err = core.NewSessionID()
		if err != nil {
			return nil, err
		}
		if _, taken := s.sessions[id]; !taken {
			break
		}
	}

	now := time.Now()
	session := &core.Session{
		ID:              id,
		Address:         address,
		IssuedAt:        now,
		ExpiresAt:       now.Add(ttl),
		LastActivity:    now,
		WorldIDVerified: opts.WorldIDVerified,
		Permissions:     append([]string(nil), opts.Permissions...),
	}
	s.sessions[id] = session

	out := *session
	return &out, nil
}

// Get returns the session and refreshes its last-activity time
func (s *MemorySessionStore) Get(ctx context.Context, sessionID string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	if session.Expired(time.Now()) {
		delete(s.sessions, sessionID)
		return nil, core.ErrSessionExpired
	}

	session.LastActivity = time.Now()
	out := *session
	return &out, nil
}

// Update applies a partial mutation to a live session
func (s *MemorySessionStore) Update(ctx context.Context, sessionID string, update core.SessionUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.Expired(time.Now()) {
		return false
	}

	if update.WorldIDVerified != nil {
		session.WorldIDVerified = *update.WorldIDVerified
	}
	if update.Permissions != nil {
		session.Permissions = append([]string(nil), update.Permissions...)
	}
	session.LastActivity = time.Now()
	return true
}

// Delete destroys a session
func (s *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// Sweep removes all sessions past their expiry
func (s *MemorySessionStore) Sweep(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			evicted++
		}
	}

	if evicted > 0 && s.logger != nil {
		s.logger.Debug("session sweep completed", zap.Int("evicted", evicted))
	}
	return evicted
}

// Len returns the number of live sessions, used for tests
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
