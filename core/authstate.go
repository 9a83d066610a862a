package core

import "time"

// Status is the authentication state machine's position
type Status string

const (
	StatusIdle           Status = "idle"
	StatusConnecting     Status = "connecting"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	StatusError          Status = "error"
)

// AuthState is the state machine's view of one authentication attempt.
// It is mutated only through the machine's transitions.
type AuthState struct {
	Status          Status         `json:"status"`
	Address         string         `json:"address,omitempty"`
	SessionID       string         `json:"session_id,omitempty"`
	Err             *EnhancedError `json:"error,omitempty"`
	Attempts        int            `json:"attempts"`
	LastAttemptTime time.Time      `json:"last_attempt_time,omitempty"`
}

// Connecting reports whether an attempt is currently in flight
func (s AuthState) Connecting() bool {
	return s.Status == StatusConnecting || s.Status == StatusAuthenticating
}
