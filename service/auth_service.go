package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prizepool/warden/core"
	"github.com/prizepool/warden/ports"
)

// AuthService runs the server-side verification pipeline: signature recovery,
// message validation, rate limiting, nonce consumption and session creation,
// short-circuiting on the first failure. It is shared by the HTTP verify
// endpoint and the authentication state machine.
type AuthService struct {
	nonces   ports.NonceRegistry
	sessions ports.SessionStore
	limiter  ports.RateLimiter
	verifier ports.SignatureVerifier
	events   ports.EventPublisher

	policy     core.SiwePolicy
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewAuthService creates the verification pipeline. The event publisher may be
// nil; publishing is best-effort either way.
func NewAuthService(
	nonces ports.NonceRegistry,
	sessions ports.SessionStore,
	limiter ports.RateLimiter,
	verifier ports.SignatureVerifier,
	events ports.EventPublisher,
	policy core.SiwePolicy,
	sessionTTL time.Duration,
	logger *zap.Logger,
) *AuthService {
	if sessionTTL <= 0 {
		sessionTTL = core.DefaultSessionTTL
	}
	return &AuthService{
		nonces:     nonces,
		sessions:   sessions,
		limiter:    limiter,
		verifier:   verifier,
		events:     events,
		policy:     policy,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// IssueNonce produces a fresh single-use nonce
func (s *AuthService) IssueNonce(ctx context.Context) (core.Nonce, error) {
	return s.nonces.Issue(ctx)
}

// SessionTTL returns the configured session lifetime
func (s *AuthService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// Sessions exposes the session store for the transport layer
func (s *AuthService) Sessions() ports.SessionStore {
	return s.sessions
}

// Verify authenticates a signed sign-in message. The check order is part of
// the contract: parse, signature recovery, message validation, rate limit,
// nonce consumption, then session creation. The first failing check wins.
func (s *AuthService) Verify(ctx context.Context, address, message, signature string) (*core.Session, *core.EnhancedError) {
	msg, err := core.ParseMessage(message)
	if err != nil {
		return nil, core.Classify(err)
	}

	ok, err := s.verifier.Verify(address, message, signature)
	if err != nil {
		return nil, core.Classify(err)
	}
	if !ok {
		return nil, core.Classify(core.ErrInvalidSignature)
	}
	if !strings.EqualFold(msg.Address, address) {
		return nil, core.ClassifyType(core.SignatureInvalid, "message address does not match signer")
	}

	if err := core.ValidateMessage(msg, s.policy); err != nil {
		return nil, core.Classify(err)
	}

	if err := s.limiter.CheckAndRecord(ctx, strings.ToLower(address)); err != nil {
		return nil, core.Classify(err)
	}

	if err := s.nonces.Consume(ctx, msg.Nonce); err != nil {
		return nil, core.Classify(err)
	}

	session, err := s.sessions.Create(ctx, address, s.sessionTTL, core.SessionOptions{})
	if err != nil {
		s.logger.Error("failed to create session", zap.String("address", address), zap.Error(err))
		return nil, core.ClassifyType(core.ServerError, err.Error())
	}

	s.logger.Info("wallet authenticated",
		zap.String("address", address),
		zap.String("session_id", session.ID),
	)

	if s.events != nil {
		if err := s.events.PublishAuthenticated(ctx, address, session.ID); err != nil {
			// Session is already created; the event is best-effort
			s.logger.Warn("failed to publish authenticated event", zap.Error(err))
		}
	}

	return session, nil
}

// Logout destroys a session and notifies other instances
func (s *AuthService) Logout(ctx context.Context, session *core.Session) error {
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		return err
	}

	if s.events != nil {
		if err := s.events.PublishLogout(ctx, session.Address, session.ID); err != nil {
			s.logger.Warn("failed to publish logout event", zap.Error(err))
		}
	}
	return nil
}
