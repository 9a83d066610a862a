package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type taxonomyEntry struct {
	code            string
	userMessage     string
	severity        Severity
	retryable       bool
	recoveryAction  RecoveryAction
	recoveryDelayMs int
}

// taxonomy is the closed set of failure classifications. Entries are static
// configuration: classification selects one and attaches the original message,
// it never invents severities at call time.
var taxonomy = map[ErrorType]taxonomyEntry{
	NetworkTimeout: {
		code:            "NETWORK_TIMEOUT",
		userMessage:     "The request timed out. Check your connection and try again.",
		severity:        SeverityMedium,
		retryable:       true,
		recoveryAction:  RecoveryWaitAndRetry,
		recoveryDelayMs: 2000,
	},
	RpcError: {
		code:            "RPC_ERROR",
		userMessage:     "A network service returned an error. Please try again.",
		severity:        SeverityMedium,
		retryable:       true,
		recoveryAction:  RecoveryWaitAndRetry,
		recoveryDelayMs: 3000,
	},
	ServiceUnavailable: {
		code:            "SERVICE_UNAVAILABLE",
		userMessage:     "The sign-in service is temporarily unavailable.",
		severity:        SeverityHigh,
		retryable:       true,
		recoveryAction:  RecoveryWaitAndRetry,
		recoveryDelayMs: 5000,
	},
	HostUnavailable: {
		code:           "HOST_UNAVAILABLE",
		userMessage:    "Wallet signing is not available here. Open the app in your wallet host.",
		severity:       SeverityCritical,
		retryable:      false,
		recoveryAction: RecoveryOpenHostApp,
	},
	UserRejected: {
		code:           "USER_REJECTED",
		userMessage:    "You declined the signature request. Tap sign in to try again.",
		severity:       SeverityLow,
		retryable:      true,
		recoveryAction: RecoveryRetry,
	},
	WalletLocked: {
		code:           "WALLET_LOCKED",
		userMessage:    "Your wallet is locked. Unlock it and try again.",
		severity:       SeverityMedium,
		retryable:      true,
		recoveryAction: RecoveryRetry,
	},
	AddressMissing: {
		code:           "ADDRESS_MISSING",
		userMessage:    "No wallet address was returned. Reconnect your wallet.",
		severity:       SeverityHigh,
		retryable:      true,
		recoveryAction: RecoveryRetry,
	},
	NonceNotFound: {
		code:           "NONCE_NOT_FOUND",
		userMessage:    "Your sign-in request expired. Please start again.",
		severity:       SeverityMedium,
		retryable:      true,
		recoveryAction: RecoveryRetry,
	},
	NonceAlreadyUsed: {
		code:           "NONCE_ALREADY_USED",
		userMessage:    "This sign-in request was already used. Please start again.",
		severity:       SeverityHigh,
		retryable:      true,
		recoveryAction: RecoveryRetry,
	},
	NonceExpired: {
		code:           "NONCE_EXPIRED",
		userMessage:    "Your sign-in request expired. Please start again.",
		severity:       SeverityMedium,
		retryable:      true,
		recoveryAction: RecoveryRetry,
	},
	SignatureInvalid: {
		code:           "SIGNATURE_INVALID",
		userMessage:    "The signature could not be verified. Please try again.",
		severity:       SeverityHigh,
		retryable:      true,
		recoveryAction: RecoveryRetry,
	},
	MessageMalformed: {
		code:           "MESSAGE_MALFORMED",
		userMessage:    "The sign-in message was invalid. Please refresh and try again.",
		severity:       SeverityHigh,
		retryable:      false,
		recoveryAction: RecoveryRefreshPage,
	},
	MessageExpired: {
		code:           "MESSAGE_EXPIRED",
		userMessage:    "The sign-in message expired. Please try again.",
		severity:       SeverityMedium,
		retryable:      true,
		recoveryAction: RecoveryRetry,
	},
	RateLimited: {
		code:            "RATE_LIMITED",
		userMessage:     "Too many sign-in attempts. Wait a few minutes before retrying.",
		severity:        SeverityMedium,
		retryable:       true,
		recoveryAction:  RecoveryWaitAndRetry,
		recoveryDelayMs: 60000,
	},
	ServerError: {
		code:           "SERVER_ERROR",
		userMessage:    "Something went wrong on our side. Please try again.",
		severity:       SeverityHigh,
		retryable:      true,
		recoveryAction: RecoveryRetry,
	},
	MaxRetriesExceeded: {
		code:           "MAX_RETRIES_EXCEEDED",
		userMessage:    "Sign-in failed repeatedly. Refresh the page to start over.",
		severity:       SeverityCritical,
		retryable:      false,
		recoveryAction: RecoveryRefreshPage,
	},
	UnknownError: {
		code:           "UNKNOWN_ERROR",
		userMessage:    "An unexpected error occurred. Please try again.",
		severity:       SeverityMedium,
		retryable:      true,
		recoveryAction: RecoveryContactSupport,
	},
}

// sentinelTypes maps the domain's sentinel errors onto taxonomy entries
var sentinelTypes = []struct {
	err error
	typ ErrorType
}{
	{ErrNonceNotFound, NonceNotFound},
	{ErrNonceAlreadyUsed, NonceAlreadyUsed},
	{ErrNonceExpired, NonceExpired},
	{ErrRateLimited, RateLimited},
	{ErrInvalidSignature, SignatureInvalid},
	{ErrMessageMalformed, MessageMalformed},
	{ErrMessageFromFuture, MessageExpired},
	{ErrMessageExpired, MessageExpired},
	{ErrInvalidDomain, MessageMalformed},
	{ErrInvalidAddress, MessageMalformed},
	{ErrUnsupportedVersion, MessageMalformed},
	{ErrInvalidChainID, MessageMalformed},
	{ErrInvalidNonceFormat, MessageMalformed},
	{ErrInvalidExpirationTime, MessageMalformed},
	{ErrStoreOperationFailed, ServerError},
	{ErrSessionNotFound, ServerError},
	{ErrSessionExpired, ServerError},
}

// keywordTypes maps message fragments onto taxonomy entries, checked in order
var keywordTypes = []struct {
	keyword string
	typ     ErrorType
}{
	{"timeout", NetworkTimeout},
	{"timed out", NetworkTimeout},
	{"deadline exceeded", NetworkTimeout},
	{"user_rejected", UserRejected},
	{"user rejected", UserRejected},
	{"user denied", UserRejected},
	{"wallet_locked", WalletLocked},
	{"locked", WalletLocked},
	{"address_missing", AddressMissing},
	{"no address", AddressMissing},
	{"rate limit", RateLimited},
	{"too many", RateLimited},
	{"rpc", RpcError},
	{"unavailable", ServiceUnavailable},
	{"connection refused", ServiceUnavailable},
	{"signature", SignatureInvalid},
	{"nonce", NonceNotFound},
}

// ClassifyType builds the EnhancedError for a known taxonomy type
func ClassifyType(typ ErrorType, message string) *EnhancedError {
	entry, ok := taxonomy[typ]
	if !ok {
		typ = UnknownError
		entry = taxonomy[UnknownError]
	}
	if message == "" {
		message = entry.userMessage
	}
	return &EnhancedError{
		Type:            typ,
		Code:            entry.code,
		Message:         message,
		UserMessage:     entry.userMessage,
		Severity:        entry.severity,
		Retryable:       entry.retryable,
		RecoveryAction:  entry.recoveryAction,
		RecoveryDelayMs: entry.recoveryDelayMs,
		Timestamp:       time.Now(),
	}
}

// Classify maps an arbitrary failure onto the taxonomy. It is total: already
// classified errors pass through, sentinel errors and known error types map
// directly, anything else falls back to keyword matching and then UnknownError.
func Classify(input any) *EnhancedError {
	switch v := input.(type) {
	case nil:
		return ClassifyType(UnknownError, "")
	case *EnhancedError:
		return v
	case ErrorType:
		return ClassifyType(v, "")
	case error:
		for _, s := range sentinelTypes {
			if errors.Is(v, s.err) {
				return ClassifyType(s.typ, v.Error())
			}
		}
		return classifyText(v.Error())
	case string:
		return classifyText(v)
	default:
		return ClassifyType(UnknownError, fmt.Sprintf("%v", input))
	}
}

func classifyText(text string) *EnhancedError {
	lowered := strings.ToLower(text)
	for _, k := range keywordTypes {
		if strings.Contains(lowered, k.keyword) {
			return ClassifyType(k.typ, text)
		}
	}
	return ClassifyType(UnknownError, text)
}

// RecoveryInstructions is the user-facing next step for a classified failure
type RecoveryInstructions struct {
	Action  RecoveryAction `json:"action"`
	Message string         `json:"message"`
	DelayMs int            `json:"delay_ms,omitempty"`
}

// GetRecoveryInstructions renders the recovery guidance from the taxonomy entry
func GetRecoveryInstructions(e *EnhancedError) RecoveryInstructions {
	return RecoveryInstructions{
		Action:  e.RecoveryAction,
		Message: e.UserMessage,
		DelayMs: e.RecoveryDelayMs,
	}
}
