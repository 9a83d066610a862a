package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prizepool/warden/core"
	"github.com/prizepool/warden/ports"
)

// Named events observable by the UI layer
const (
	EventStateChanged   = "stateChanged"
	EventConnecting     = "connecting"
	EventAuthenticating = "authenticating"
	EventAuthenticated  = "authenticated"
	EventError          = "error"
	EventRetryScheduled = "retryScheduled"
	EventReset          = "reset"
	EventDisconnected   = "disconnected"
)

// Event is delivered to subscribers on every state mutation
type Event struct {
	Name      string
	Previous  core.Status
	Current   core.Status
	Address   string
	SessionID string
	Err       *core.EnhancedError
	Delay     time.Duration // set on retryScheduled
}

// MachineConfig tunes the authentication flow
type MachineConfig struct {
	MaxRetries     int           // attempts before MaxRetriesExceeded
	BaseDelay      time.Duration // exponential backoff base for scheduled retries
	NonceAttempts  int           // bounded retry for nonce fetch
	NonceBaseDelay time.Duration // exponential backoff base for nonce fetch
	BridgeTimeout  time.Duration // outbound wallet-bridge call bound
	Statement      string        // statement included in sign requests
}

// DefaultMachineConfig returns the documented retry policy
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		MaxRetries:     3,
		BaseDelay:      time.Second,
		NonceAttempts:  3,
		NonceBaseDelay: time.Second,
		BridgeTimeout:  10 * time.Second,
	}
}

// Machine orchestrates the end-to-end authentication flow:
// connect, obtain nonce, request wallet signature, verify, establish session.
// It owns the retry/backoff policy and fans state changes out to subscribers.
// One machine serves one logical user; at most one attempt is in flight.
type Machine struct {
	cfg    MachineConfig
	auth   *AuthService
	bridge ports.WalletBridge
	logger *zap.Logger

	mu          sync.Mutex
	state       core.AuthState
	history     *core.ErrorHistory
	subscribers map[int]func(Event)
	nextSubID   int
	retryTimer  *time.Timer
	inFlight    bool

	// generation stamps each attempt; Reset and Disconnect move it forward so
	// an attempt still in flight when the user bails out cannot mutate the
	// machine once it completes
	generation uint64
}

// NewMachine creates a state machine in the idle state
func NewMachine(cfg MachineConfig, auth *AuthService, bridge ports.WalletBridge, logger *zap.Logger) *Machine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.NonceAttempts <= 0 {
		cfg.NonceAttempts = 3
	}
	if cfg.NonceBaseDelay <= 0 {
		cfg.NonceBaseDelay = time.Second
	}
	if cfg.BridgeTimeout <= 0 {
		cfg.BridgeTimeout = 10 * time.Second
	}
	return &Machine{
		cfg:         cfg,
		auth:        auth,
		bridge:      bridge,
		logger:      logger,
		state:       core.AuthState{Status: core.StatusIdle},
		history:     core.NewErrorHistory(core.DefaultErrorHistoryCapacity),
		subscribers: make(map[int]func(Event)),
	}
}

// Subscribe registers a listener for all events and returns an unsubscribe func
func (m *Machine) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// State returns a snapshot of the current authentication state
func (m *Machine) State() core.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns the recorded classified failures, oldest first
func (m *Machine) History() []*core.EnhancedError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Entries()
}

// Authenticate runs one authentication attempt. Calling it while already
// authenticated or while an attempt is in flight is a no-op.
func (m *Machine) Authenticate(ctx context.Context) *core.EnhancedError {
	m.mu.Lock()
	if m.state.Status == core.StatusAuthenticated || m.inFlight {
		m.mu.Unlock()
		return nil
	}
	if m.state.Attempts >= m.cfg.MaxRetries {
		e := core.ClassifyType(core.MaxRetriesExceeded, "")
		events := m.failLocked(e)
		m.mu.Unlock()
		m.deliver(events)
		return e
	}
	if !m.bridge.Available() {
		e := core.ClassifyType(core.HostUnavailable, "")
		events := m.failLocked(e)
		m.mu.Unlock()
		m.deliver(events)
		return e
	}

	m.inFlight = true
	gen := m.generation
	m.state.Attempts++
	m.state.LastAttemptTime = time.Now()
	events := m.transitionLocked(core.StatusConnecting, EventConnecting)
	m.mu.Unlock()
	m.deliver(events)

	nonce, err := m.fetchNonce(ctx)
	if err != nil {
		return m.fail(gen, core.Classify(err), true)
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return nil
	}
	events = m.transitionLocked(core.StatusAuthenticating, EventAuthenticating)
	m.mu.Unlock()
	m.deliver(events)

	bridgeCtx, cancel := context.WithTimeout(ctx, m.cfg.BridgeTimeout)
	result, err := m.bridge.RequestSignature(bridgeCtx, ports.SignRequest{
		Nonce:          nonce.Value,
		RequestID:      uuid.New().String(),
		Statement:      m.cfg.Statement,
		ExpirationTime: nonce.ExpiresAt.UTC().Format(time.RFC3339),
	})
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return m.fail(gen, core.ClassifyType(core.NetworkTimeout, "wallet bridge call timed out"), true)
		}
		return m.fail(gen, core.Classify(err), true)
	}

	if result.Status != ports.BridgeStatusSuccess {
		e := core.Classify(result.ErrorCode)
		// The user decides when to retry a rejection; no automatic backoff
		return m.fail(gen, e, e.Type != core.UserRejected)
	}
	if result.Address == "" {
		return m.fail(gen, core.ClassifyType(core.AddressMissing, ""), true)
	}

	if result.Message == "" || result.Signature == "" {
		// Address-only connection, used only in development mode:
		// authenticated without a session
		return m.succeed(gen, result.Address, "")
	}

	session, verr := m.auth.Verify(ctx, result.Address, result.Message, result.Signature)
	if verr != nil {
		return m.fail(gen, verr, verr.Type != core.UserRejected)
	}

	return m.succeed(gen, session.Address, session.ID)
}

// Retry re-runs authentication on explicit user request. It is a no-op when an
// attempt is in flight or attempts are exhausted.
func (m *Machine) Retry(ctx context.Context) *core.EnhancedError {
	m.mu.Lock()
	if m.inFlight || m.state.Attempts >= m.cfg.MaxRetries {
		m.mu.Unlock()
		return nil
	}
	m.cancelRetryLocked()
	m.mu.Unlock()

	return m.Authenticate(ctx)
}

// Reset cancels any pending retry, voids any attempt still in flight and
// returns the machine to idle
func (m *Machine) Reset() {
	m.mu.Lock()
	m.generation++
	m.cancelRetryLocked()
	m.inFlight = false
	prev := m.state.Status
	m.state = core.AuthState{Status: core.StatusIdle}
	events := []Event{
		{Name: EventStateChanged, Previous: prev, Current: core.StatusIdle},
		{Name: EventReset, Previous: prev, Current: core.StatusIdle},
	}
	m.mu.Unlock()
	m.deliver(events)
}

// Disconnect cancels any pending retry, voids any attempt still in flight,
// drops the session reference and returns the machine to idle
func (m *Machine) Disconnect() {
	m.mu.Lock()
	m.generation++
	m.cancelRetryLocked()
	m.inFlight = false
	prev := m.state.Status
	m.state = core.AuthState{Status: core.StatusIdle}
	events := []Event{
		{Name: EventStateChanged, Previous: prev, Current: core.StatusIdle},
		{Name: EventDisconnected, Previous: prev, Current: core.StatusIdle},
	}
	m.mu.Unlock()
	m.deliver(events)
}

// fetchNonce obtains a nonce with its own bounded retry and exponential backoff
func (m *Machine) fetchNonce(ctx context.Context) (core.Nonce, error) {
	var lastErr error
	for attempt := 0; attempt < m.cfg.NonceAttempts; attempt++ {
		if attempt > 0 {
			delay := m.cfg.NonceBaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return core.Nonce{}, ctx.Err()
			}
		}

		nonce, err := m.auth.IssueNonce(ctx)
		if err == nil {
			return nonce, nil
		}
		lastErr = err
		m.logger.Warn("nonce fetch failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return core.Nonce{}, lastErr
}

// succeed completes the attempt stamped gen. An attempt voided by Reset or
// Disconnect leaves the machine untouched.
func (m *Machine) succeed(gen uint64, address, sessionID string) *core.EnhancedError {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return nil
	}
	m.inFlight = false
	m.state.Address = address
	m.state.SessionID = sessionID
	m.state.Err = nil
	m.state.Attempts = 0
	events := m.transitionLocked(core.StatusAuthenticated, EventAuthenticated)
	m.mu.Unlock()
	m.deliver(events)
	return nil
}

// fail completes the attempt stamped gen with a classified error. An attempt
// voided by Reset or Disconnect leaves the machine untouched.
func (m *Machine) fail(gen uint64, e *core.EnhancedError, autoRetry bool) *core.EnhancedError {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return nil
	}
	m.inFlight = false
	events := m.failLocked(e)

	if autoRetry && e.Retryable {
		shift := m.state.Attempts - 1
		if shift < 0 {
			shift = 0
		}
		delay := m.cfg.BaseDelay << shift
		m.retryTimer = time.AfterFunc(delay, func() {
			m.mu.Lock()
			m.retryTimer = nil
			m.mu.Unlock()
			m.Authenticate(context.Background())
		})
		events = append(events, Event{
			Name:    EventRetryScheduled,
			Current: core.StatusError,
			Err:     e,
			Delay:   delay,
		})
	}
	m.mu.Unlock()
	m.deliver(events)
	return e
}

// failLocked records the error and transitions to the error state.
// Caller holds m.mu.
func (m *Machine) failLocked(e *core.EnhancedError) []Event {
	m.history.Append(e)
	m.state.Err = e
	m.logger.Warn("authentication failed",
		zap.String("code", e.Code),
		zap.Int("attempts", m.state.Attempts),
	)
	return m.transitionLocked(core.StatusError, EventError)
}

// transitionLocked moves to the next status and builds the stateChanged plus
// named event pair. Caller holds m.mu.
func (m *Machine) transitionLocked(next core.Status, name string) []Event {
	prev := m.state.Status
	m.state.Status = next
	base := Event{
		Previous:  prev,
		Current:   next,
		Address:   m.state.Address,
		SessionID: m.state.SessionID,
		Err:       m.state.Err,
	}
	changed := base
	changed.Name = EventStateChanged
	named := base
	named.Name = name
	return []Event{changed, named}
}

// cancelRetryLocked stops a pending retry timer. Caller holds m.mu.
func (m *Machine) cancelRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

// deliver invokes subscribers outside the state lock
func (m *Machine) deliver(events []Event) {
	m.mu.Lock()
	fns := make([]func(Event), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}
