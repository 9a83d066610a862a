package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prizepool/warden/adapters/bridge"
	"github.com/prizepool/warden/adapters/limiter"
	"github.com/prizepool/warden/adapters/store"
	"github.com/prizepool/warden/adapters/verifier"
	"github.com/prizepool/warden/core"
	"github.com/prizepool/warden/ports"
)

// fakeBridge returns canned results, one per call
type fakeBridge struct {
	mu        sync.Mutex
	available bool
	results   []ports.SignResult
	errs      []error
	calls     int
	block     chan struct{} // when set, RequestSignature waits on it
	entered   chan struct{} // when set, receives a token as each call starts
}

func (b *fakeBridge) Available() bool { return b.available }

func (b *fakeBridge) RequestSignature(ctx context.Context, req ports.SignRequest) (ports.SignResult, error) {
	b.mu.Lock()
	idx := b.calls
	b.calls++
	block := b.block
	b.mu.Unlock()

	if b.entered != nil {
		select {
		case b.entered <- struct{}{}:
		default:
		}
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ports.SignResult{}, ctx.Err()
		}
	}

	if idx < len(b.errs) && b.errs[idx] != nil {
		return ports.SignResult{}, b.errs[idx]
	}
	if idx < len(b.results) {
		return b.results[idx], nil
	}
	return ports.SignResult{Status: ports.BridgeStatusError, ErrorCode: "unavailable"}, nil
}

func (b *fakeBridge) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func newTestAuth(t *testing.T) *AuthService {
	t.Helper()
	logger := zap.NewNop()
	return NewAuthService(
		store.NewMemoryNonceRegistry(10*time.Minute, logger),
		store.NewMemorySessionStore(false, logger),
		limiter.NewMemoryRateLimiter(100, 15*time.Minute, logger),
		verifier.NewEthVerifier(logger),
		nil,
		core.DefaultSiwePolicy(testChainID),
		24*time.Hour,
		logger,
	)
}

func collectEvents(m *Machine) <-chan Event {
	ch := make(chan Event, 128)
	m.Subscribe(func(ev Event) { ch <- ev })
	return ch
}

func waitForEvent(t *testing.T, ch <-chan Event, name string) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", name)
		}
	}
}

func TestMachineHappyPath(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet := bridge.NewLocalBridge(key, testDomain, testURI, testChainID)

	m := NewMachine(DefaultMachineConfig(), newTestAuth(t), wallet, zap.NewNop())
	events := collectEvents(m)

	require.Nil(t, m.Authenticate(context.Background()))

	waitForEvent(t, events, EventConnecting)
	waitForEvent(t, events, EventAuthenticating)
	done := waitForEvent(t, events, EventAuthenticated)
	require.Equal(t, wallet.Address(), done.Address)
	require.NotEmpty(t, done.SessionID)

	state := m.State()
	require.Equal(t, core.StatusAuthenticated, state.Status)
	require.Equal(t, 0, state.Attempts)
	require.Nil(t, state.Err)

	// An authenticated machine treats further calls as no-ops
	require.Nil(t, m.Authenticate(context.Background()))

	m.Disconnect()
	require.Equal(t, core.StatusIdle, m.State().Status)
}

func TestMachineAddressOnlyDevelopmentMode(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet := bridge.NewLocalBridge(key, testDomain, testURI, testChainID)
	wallet.AddressOnly = true

	m := NewMachine(DefaultMachineConfig(), newTestAuth(t), wallet, zap.NewNop())

	require.Nil(t, m.Authenticate(context.Background()))

	state := m.State()
	require.Equal(t, core.StatusAuthenticated, state.Status)
	require.Equal(t, wallet.Address(), state.Address)
	require.Empty(t, state.SessionID)
}

func TestMachineHostUnavailable(t *testing.T) {
	m := NewMachine(DefaultMachineConfig(), newTestAuth(t), &fakeBridge{available: false}, zap.NewNop())
	events := collectEvents(m)

	e := m.Authenticate(context.Background())
	require.NotNil(t, e)
	require.Equal(t, core.HostUnavailable, e.Type)
	require.False(t, e.Retryable)

	ev := waitForEvent(t, events, EventError)
	require.Equal(t, core.HostUnavailable, ev.Err.Type)
	require.Equal(t, core.StatusError, m.State().Status)
}

func TestMachineUserRejectedNoAutoRetry(t *testing.T) {
	wallet := &fakeBridge{
		available: true,
		results: []ports.SignResult{
			{Status: ports.BridgeStatusError, ErrorCode: ports.BridgeErrUserRejected},
		},
	}
	cfg := DefaultMachineConfig()
	cfg.BaseDelay = time.Millisecond

	m := NewMachine(cfg, newTestAuth(t), wallet, zap.NewNop())
	events := collectEvents(m)

	e := m.Authenticate(context.Background())
	require.NotNil(t, e)
	require.Equal(t, core.UserRejected, e.Type)
	require.True(t, e.Retryable)

	waitForEvent(t, events, EventError)

	// No retry is scheduled for a rejection; the user decides
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, wallet.callCount())
	require.Equal(t, core.StatusError, m.State().Status)
}

func TestMachineBackoffThenMaxRetries(t *testing.T) {
	wallet := &fakeBridge{
		available: true,
		results: []ports.SignResult{
			{Status: ports.BridgeStatusError, ErrorCode: "request timed out"},
			{Status: ports.BridgeStatusError, ErrorCode: "request timed out"},
			{Status: ports.BridgeStatusError, ErrorCode: "request timed out"},
		},
	}
	cfg := DefaultMachineConfig()
	cfg.BaseDelay = 2 * time.Millisecond

	m := NewMachine(cfg, newTestAuth(t), wallet, zap.NewNop())
	events := collectEvents(m)

	e := m.Authenticate(context.Background())
	require.NotNil(t, e)
	require.Equal(t, core.NetworkTimeout, e.Type)

	// Three failing attempts schedule exponentially growing delays
	first := waitForEvent(t, events, EventRetryScheduled)
	require.Equal(t, cfg.BaseDelay, first.Delay)
	second := waitForEvent(t, events, EventRetryScheduled)
	require.Equal(t, 2*cfg.BaseDelay, second.Delay)
	third := waitForEvent(t, events, EventRetryScheduled)
	require.Equal(t, 4*cfg.BaseDelay, third.Delay)

	// The fourth invocation is refused outright
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Name == EventError && ev.Err.Type == core.MaxRetriesExceeded {
				require.Equal(t, 3, wallet.callCount())
				require.False(t, ev.Err.Retryable)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for max retries")
		}
	}
}

func TestMachineResetCancelsScheduledRetry(t *testing.T) {
	wallet := &fakeBridge{
		available: true,
		results: []ports.SignResult{
			{Status: ports.BridgeStatusError, ErrorCode: "request timed out"},
		},
	}
	cfg := DefaultMachineConfig()
	cfg.BaseDelay = time.Hour

	m := NewMachine(cfg, newTestAuth(t), wallet, zap.NewNop())
	events := collectEvents(m)

	require.NotNil(t, m.Authenticate(context.Background()))
	waitForEvent(t, events, EventRetryScheduled)

	m.Reset()

	// Reset emits the stateChanged pair like every other transition
	changed := waitForEvent(t, events, EventStateChanged)
	require.Equal(t, core.StatusError, changed.Previous)
	require.Equal(t, core.StatusIdle, changed.Current)
	reset := waitForEvent(t, events, EventReset)
	require.Equal(t, core.StatusError, reset.Previous)
	require.Equal(t, core.StatusIdle, reset.Current)

	state := m.State()
	require.Equal(t, core.StatusIdle, state.Status)
	require.Equal(t, 0, state.Attempts)
	require.Nil(t, state.Err)
	require.Equal(t, 1, wallet.callCount())
}

func TestMachineRejectsReentrantAttempts(t *testing.T) {
	release := make(chan struct{})
	wallet := &fakeBridge{
		available: true,
		block:     release,
		results: []ports.SignResult{
			{Status: ports.BridgeStatusError, ErrorCode: ports.BridgeErrUserRejected},
		},
	}

	m := NewMachine(DefaultMachineConfig(), newTestAuth(t), wallet, zap.NewNop())
	events := collectEvents(m)

	go m.Authenticate(context.Background())
	waitForEvent(t, events, EventAuthenticating)

	// A second call while the first is in flight is a no-op
	require.Nil(t, m.Authenticate(context.Background()))
	require.Nil(t, m.Retry(context.Background()))

	close(release)
	waitForEvent(t, events, EventError)
	require.Equal(t, 1, wallet.callCount())
}

func TestMachineManualRetryAfterRejection(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	good := bridge.NewLocalBridge(key, testDomain, testURI, testChainID)

	// First call rejects, subsequent calls delegate to a real signer
	wallet := &switchBridge{first: &fakeBridge{
		available: true,
		results: []ports.SignResult{
			{Status: ports.BridgeStatusError, ErrorCode: ports.BridgeErrUserRejected},
		},
	}, rest: good}

	m := NewMachine(DefaultMachineConfig(), newTestAuth(t), wallet, zap.NewNop())

	e := m.Authenticate(context.Background())
	require.NotNil(t, e)
	require.Equal(t, core.UserRejected, e.Type)

	require.Nil(t, m.Retry(context.Background()))
	require.Equal(t, core.StatusAuthenticated, m.State().Status)

	// History keeps the rejection on record
	history := m.History()
	require.Len(t, history, 1)
	require.Equal(t, core.UserRejected, history[0].Type)
}

func TestMachineResetDuringInFlightFailure(t *testing.T) {
	release := make(chan struct{})
	wallet := &fakeBridge{
		available: true,
		block:     release,
		results: []ports.SignResult{
			{Status: ports.BridgeStatusError, ErrorCode: "request timed out"},
		},
	}

	m := NewMachine(DefaultMachineConfig(), newTestAuth(t), wallet, zap.NewNop())
	events := collectEvents(m)

	done := make(chan *core.EnhancedError, 1)
	go func() { done <- m.Authenticate(context.Background()) }()
	waitForEvent(t, events, EventAuthenticating)

	// The user bails out while the bridge call is still pending; when that
	// call later fails the machine must stay idle
	m.Reset()
	close(release)

	select {
	case e := <-done:
		require.Nil(t, e)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the voided attempt to return")
	}

	state := m.State()
	require.Equal(t, core.StatusIdle, state.Status)
	require.Equal(t, 0, state.Attempts)
	require.Nil(t, state.Err)
	require.Empty(t, m.History())
	require.Equal(t, 1, wallet.callCount())
}

func TestMachineResetVoidsStaleAttempt(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	good := bridge.NewLocalBridge(key, testDomain, testURI, testChainID)

	release := make(chan struct{})
	stale := &fakeBridge{
		available: true,
		block:     release,
		entered:   make(chan struct{}, 1),
		results: []ports.SignResult{
			{Status: ports.BridgeStatusError, ErrorCode: "request timed out"},
		},
	}
	wallet := &switchBridge{first: stale, rest: good}

	m := NewMachine(DefaultMachineConfig(), newTestAuth(t), wallet, zap.NewNop())

	done := make(chan *core.EnhancedError, 1)
	go func() { done <- m.Authenticate(context.Background()) }()

	// Wait until the first attempt is inside the bridge call
	select {
	case <-stale.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the bridge call to start")
	}

	m.Reset()
	require.Equal(t, core.StatusIdle, m.State().Status)

	// A fresh attempt runs to completion while the voided one is still
	// inside the bridge
	require.Nil(t, m.Authenticate(context.Background()))
	require.Equal(t, core.StatusAuthenticated, m.State().Status)

	close(release)
	select {
	case e := <-done:
		require.Nil(t, e)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the voided attempt to return")
	}

	// The stale failure neither dethrones the fresh session nor lands in
	// the history
	state := m.State()
	require.Equal(t, core.StatusAuthenticated, state.Status)
	require.Equal(t, good.Address(), state.Address)
	require.Nil(t, state.Err)
	require.Empty(t, m.History())
}

func TestMachineBridgeTimeout(t *testing.T) {
	wallet := &fakeBridge{available: true, block: make(chan struct{})}
	cfg := DefaultMachineConfig()
	cfg.BridgeTimeout = 15 * time.Millisecond
	cfg.BaseDelay = time.Hour

	m := NewMachine(cfg, newTestAuth(t), wallet, zap.NewNop())

	e := m.Authenticate(context.Background())
	require.NotNil(t, e)
	require.Equal(t, core.NetworkTimeout, e.Type)
	require.Contains(t, e.Message, "timed out")
	require.Equal(t, core.StatusError, m.State().Status)
}

func TestMachineNonceFetchRetries(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet := bridge.NewLocalBridge(key, testDomain, testURI, testChainID)

	logger := zap.NewNop()
	flaky := &flakyNonceRegistry{
		inner:    store.NewMemoryNonceRegistry(10*time.Minute, logger),
		failures: 2,
	}
	auth := NewAuthService(
		flaky,
		store.NewMemorySessionStore(false, logger),
		limiter.NewMemoryRateLimiter(100, 15*time.Minute, logger),
		verifier.NewEthVerifier(logger),
		nil,
		core.DefaultSiwePolicy(testChainID),
		24*time.Hour,
		logger,
	)

	cfg := DefaultMachineConfig()
	cfg.NonceBaseDelay = time.Millisecond

	m := NewMachine(cfg, auth, wallet, zap.NewNop())

	require.Nil(t, m.Authenticate(context.Background()))
	require.Equal(t, core.StatusAuthenticated, m.State().Status)
	require.Equal(t, 3, flaky.callCount())
}

func TestMachineNonceFetchExhausted(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet := bridge.NewLocalBridge(key, testDomain, testURI, testChainID)

	logger := zap.NewNop()
	flaky := &flakyNonceRegistry{failures: 10}
	auth := NewAuthService(
		flaky,
		store.NewMemorySessionStore(false, logger),
		limiter.NewMemoryRateLimiter(100, 15*time.Minute, logger),
		verifier.NewEthVerifier(logger),
		nil,
		core.DefaultSiwePolicy(testChainID),
		24*time.Hour,
		logger,
	)

	cfg := DefaultMachineConfig()
	cfg.NonceBaseDelay = time.Millisecond
	cfg.BaseDelay = time.Hour

	m := NewMachine(cfg, auth, wallet, zap.NewNop())

	e := m.Authenticate(context.Background())
	require.NotNil(t, e)
	require.Equal(t, core.ServiceUnavailable, e.Type)
	require.Equal(t, cfg.NonceAttempts, flaky.callCount())
	require.Equal(t, core.StatusError, m.State().Status)
}

// flakyNonceRegistry fails the first few Issue calls, then delegates
type flakyNonceRegistry struct {
	inner    ports.NonceRegistry
	failures int

	mu    sync.Mutex
	calls int
}

func (r *flakyNonceRegistry) Issue(ctx context.Context) (core.Nonce, error) {
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.mu.Unlock()

	if n <= r.failures {
		return core.Nonce{}, errors.New("store unavailable")
	}
	return r.inner.Issue(ctx)
}

func (r *flakyNonceRegistry) Consume(ctx context.Context, value string) error {
	return r.inner.Consume(ctx, value)
}

func (r *flakyNonceRegistry) Sweep(ctx context.Context, now time.Time) int {
	return r.inner.Sweep(ctx, now)
}

func (r *flakyNonceRegistry) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// switchBridge sends the first request to one bridge and the rest to another
type switchBridge struct {
	mu    sync.Mutex
	calls int
	first ports.WalletBridge
	rest  ports.WalletBridge
}

func (s *switchBridge) Available() bool { return true }

func (s *switchBridge) RequestSignature(ctx context.Context, req ports.SignRequest) (ports.SignResult, error) {
	s.mu.Lock()
	s.calls++
	target := s.rest
	if s.calls == 1 {
		target = s.first
	}
	s.mu.Unlock()
	return target.RequestSignature(ctx, req)
}
