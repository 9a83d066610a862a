package core

import "errors"

var (
	// ErrNonceNotFound is returned when a nonce was never issued or already swept
	ErrNonceNotFound = errors.New("nonce not found")

	// ErrNonceAlreadyUsed is returned when a nonce has already been consumed
	ErrNonceAlreadyUsed = errors.New("nonce already used")

	// ErrNonceExpired is returned when a nonce is past its TTL
	ErrNonceExpired = errors.New("nonce has expired")

	// ErrSessionNotFound is returned when a session id is unknown
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when a session is past its TTL
	ErrSessionExpired = errors.New("session has expired")

	// ErrRateLimited is returned when an identity exceeded its verification attempts
	ErrRateLimited = errors.New("too many verification attempts")

	// ErrInvalidSignature is returned when signature recovery does not yield the claimed address
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrMessageMalformed is returned when a message does not follow the EIP-4361 structure
	ErrMessageMalformed = errors.New("malformed sign-in message")

	// ErrInvalidDomain is returned when the message domain is empty
	ErrInvalidDomain = errors.New("invalid domain")

	// ErrInvalidAddress is returned when the address is not a 20-byte hex address
	ErrInvalidAddress = errors.New("invalid ethereum address")

	// ErrUnsupportedVersion is returned when the message version is not "1"
	ErrUnsupportedVersion = errors.New("unsupported message version")

	// ErrInvalidChainID is returned when the chain id does not match the configured chain
	ErrInvalidChainID = errors.New("invalid chain id")

	// ErrInvalidNonceFormat is returned when the nonce is not 64 hex characters
	ErrInvalidNonceFormat = errors.New("invalid nonce format")

	// ErrMessageFromFuture is returned when issuedAt is beyond the clock-skew allowance
	ErrMessageFromFuture = errors.New("message issued in the future")

	// ErrMessageExpired is returned when the message is older than the max age
	// or its expiration time has passed
	ErrMessageExpired = errors.New("message has expired")

	// ErrInvalidExpirationTime is returned when expirationTime does not parse
	ErrInvalidExpirationTime = errors.New("invalid expiration time")

	// ErrStoreOperationFailed is returned when a store backend operation fails
	ErrStoreOperationFailed = errors.New("store operation failed")
)
