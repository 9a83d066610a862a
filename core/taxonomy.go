package core

import "time"

// ErrorType identifies an entry in the closed failure taxonomy
type ErrorType string

const (
	NetworkTimeout     ErrorType = "network_timeout"
	RpcError           ErrorType = "rpc_error"
	ServiceUnavailable ErrorType = "service_unavailable"
	HostUnavailable    ErrorType = "host_unavailable"
	UserRejected       ErrorType = "user_rejected"
	WalletLocked       ErrorType = "wallet_locked"
	AddressMissing     ErrorType = "address_missing"
	NonceNotFound      ErrorType = "nonce_not_found"
	NonceAlreadyUsed   ErrorType = "nonce_already_used"
	NonceExpired       ErrorType = "nonce_expired"
	SignatureInvalid   ErrorType = "signature_invalid"
	MessageMalformed   ErrorType = "message_malformed"
	MessageExpired     ErrorType = "message_expired"
	RateLimited        ErrorType = "rate_limited"
	ServerError        ErrorType = "server_error"
	MaxRetriesExceeded ErrorType = "max_retries_exceeded"
	UnknownError       ErrorType = "unknown_error"
)

// Severity grades how serious a classified failure is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RecoveryAction is the recommended next step for a classified failure
type RecoveryAction string

const (
	RecoveryRetry          RecoveryAction = "retry"
	RecoveryWaitAndRetry   RecoveryAction = "wait_and_retry"
	RecoveryRefreshPage    RecoveryAction = "refresh_page"
	RecoveryOpenHostApp    RecoveryAction = "open_host_app"
	RecoveryContactSupport RecoveryAction = "contact_support"
	RecoveryNone           RecoveryAction = "none"
)

// EnhancedError is an immutable classified failure. The taxonomy entry supplies
// severity, retryability and recovery action; only the original message and the
// timestamp are attached at classification time.
type EnhancedError struct {
	Type            ErrorType      `json:"type"`
	Code            string         `json:"code"`
	Message         string         `json:"message"`
	UserMessage     string         `json:"user_message"`
	Severity        Severity       `json:"severity"`
	Retryable       bool           `json:"retryable"`
	RecoveryAction  RecoveryAction `json:"recovery_action"`
	RecoveryDelayMs int            `json:"recovery_delay_ms,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	return e.Code + ": " + e.Message
}

// ErrorHistory is a bounded rolling record of classified failures,
// oldest evicted first.
type ErrorHistory struct {
	capacity int
	entries  []*EnhancedError
}

// DefaultErrorHistoryCapacity bounds the rolling error history
const DefaultErrorHistoryCapacity = 50

// NewErrorHistory creates a history bounded to the given capacity
func NewErrorHistory(capacity int) *ErrorHistory {
	if capacity <= 0 {
		capacity = DefaultErrorHistoryCapacity
	}
	return &ErrorHistory{capacity: capacity}
}

// Append records a classified error, evicting the oldest entry when full
func (h *ErrorHistory) Append(e *EnhancedError) {
	if len(h.entries) == h.capacity {
		h.entries = h.entries[1:]
	}
	h.entries = append(h.entries, e)
}

// Entries returns a copy of the recorded errors, oldest first
func (h *ErrorHistory) Entries() []*EnhancedError {
	out := make([]*EnhancedError, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of recorded errors
func (h *ErrorHistory) Len() int {
	return len(h.entries)
}
