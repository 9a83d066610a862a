package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SiweVersion is the only EIP-4361 version this service accepts
const SiweVersion = "1"

const (
	// DefaultMaxMessageAge is how old an issuedAt may be before the message is stale
	DefaultMaxMessageAge = 15 * time.Minute

	// DefaultClockSkew is the allowance for issuedAt timestamps slightly in the future
	DefaultClockSkew = 5 * time.Minute
)

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	noncePattern   = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	headerPattern  = regexp.MustCompile(`^(.+) wants you to sign in with your Ethereum account:$`)
)

// SiweMessage is the parsed form of an EIP-4361 sign-in message
type SiweMessage struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       string // RFC3339, validated separately
	ExpirationTime string // RFC3339, optional
	NotBefore      string // RFC3339, optional
}

// SiwePolicy holds the validation policy for incoming messages
type SiwePolicy struct {
	ChainID       int64
	MaxMessageAge time.Duration
	ClockSkew     time.Duration
}

// DefaultSiwePolicy returns the validation policy for the given chain
func DefaultSiwePolicy(chainID int64) SiwePolicy {
	return SiwePolicy{
		ChainID:       chainID,
		MaxMessageAge: DefaultMaxMessageAge,
		ClockSkew:     DefaultClockSkew,
	}
}

// SiweParams holds the inputs for building an outgoing message
type SiweParams struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime time.Time // zero means omitted
	NotBefore      time.Time // zero means omitted
}

// BuildMessage emits the exact EIP-4361 text block for the given parameters.
// Line order: header, address, blank, statement, blank, then the field lines.
func BuildMessage(p SiweParams) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s wants you to sign in with your Ethereum account:\n", p.Domain)
	b.WriteString(p.Address)
	b.WriteString("\n\n")

	if p.Statement != "" {
		b.WriteString(p.Statement)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "URI: %s\n", p.URI)
	fmt.Fprintf(&b, "Version: %s\n", SiweVersion)
	fmt.Fprintf(&b, "Chain ID: %d\n", p.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", p.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", p.IssuedAt.UTC().Format(time.RFC3339))

	if !p.ExpirationTime.IsZero() {
		fmt.Fprintf(&b, "\nExpiration Time: %s", p.ExpirationTime.UTC().Format(time.RFC3339))
	}
	if !p.NotBefore.IsZero() {
		fmt.Fprintf(&b, "\nNot Before: %s", p.NotBefore.UTC().Format(time.RFC3339))
	}

	return b.String()
}

// ParseMessage parses an EIP-4361 text block. Only the exact structure emitted
// by BuildMessage is accepted; any deviation yields ErrMessageMalformed.
func ParseMessage(text string) (*SiweMessage, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 7 {
		return nil, ErrMessageMalformed
	}

	header := headerPattern.FindStringSubmatch(lines[0])
	if header == nil {
		return nil, ErrMessageMalformed
	}

	msg := &SiweMessage{
		Domain:  header[1],
		Address: lines[1],
	}

	if lines[2] != "" {
		return nil, ErrMessageMalformed
	}

	// The statement block is optional: either the field lines start immediately,
	// or a single statement line followed by a blank line precedes them.
	idx := 3
	if !strings.HasPrefix(lines[idx], "URI: ") {
		msg.Statement = lines[idx]
		if msg.Statement == "" || len(lines) < idx+2 || lines[idx+1] != "" {
			return nil, ErrMessageMalformed
		}
		idx += 2
	}

	uri, idx, ok := takeField(lines, idx, "URI: ")
	if !ok {
		return nil, ErrMessageMalformed
	}
	msg.URI = uri

	version, idx, ok := takeField(lines, idx, "Version: ")
	if !ok {
		return nil, ErrMessageMalformed
	}
	msg.Version = version

	chainStr, idx, ok := takeField(lines, idx, "Chain ID: ")
	if !ok {
		return nil, ErrMessageMalformed
	}
	chainID, err := strconv.ParseInt(chainStr, 10, 64)
	if err != nil {
		return nil, ErrMessageMalformed
	}
	msg.ChainID = chainID

	nonce, idx, ok := takeField(lines, idx, "Nonce: ")
	if !ok {
		return nil, ErrMessageMalformed
	}
	msg.Nonce = nonce

	issuedAt, idx, ok := takeField(lines, idx, "Issued At: ")
	if !ok {
		return nil, ErrMessageMalformed
	}
	msg.IssuedAt = issuedAt

	// Optional trailing fields, still order-sensitive
	if idx < len(lines) && strings.HasPrefix(lines[idx], "Expiration Time: ") {
		msg.ExpirationTime = strings.TrimPrefix(lines[idx], "Expiration Time: ")
		idx++
	}
	if idx < len(lines) && strings.HasPrefix(lines[idx], "Not Before: ") {
		msg.NotBefore = strings.TrimPrefix(lines[idx], "Not Before: ")
		idx++
	}

	if idx != len(lines) {
		return nil, ErrMessageMalformed
	}

	return msg, nil
}

func takeField(lines []string, idx int, prefix string) (string, int, bool) {
	if idx >= len(lines) || !strings.HasPrefix(lines[idx], prefix) {
		return "", idx, false
	}
	return strings.TrimPrefix(lines[idx], prefix), idx + 1, true
}

// ValidateMessage checks a parsed message against the policy at the current time
func ValidateMessage(msg *SiweMessage, policy SiwePolicy) error {
	return ValidateMessageAt(msg, policy, time.Now())
}

// ValidateMessageAt applies the validation rules in order and returns the first
// failing one. The rule order is part of the contract: domain, address, version,
// chain id, nonce format, issuedAt bounds, then expiration time.
func ValidateMessageAt(msg *SiweMessage, policy SiwePolicy, now time.Time) error {
	if msg.Domain == "" {
		return ErrInvalidDomain
	}
	if !addressPattern.MatchString(msg.Address) {
		return ErrInvalidAddress
	}
	if msg.Version != SiweVersion {
		return ErrUnsupportedVersion
	}
	if msg.ChainID != policy.ChainID {
		return ErrInvalidChainID
	}
	if !noncePattern.MatchString(msg.Nonce) {
		return ErrInvalidNonceFormat
	}

	issuedAt, err := time.Parse(time.RFC3339, msg.IssuedAt)
	if err != nil {
		return ErrMessageMalformed
	}
	if issuedAt.After(now.Add(policy.ClockSkew)) {
		return ErrMessageFromFuture
	}
	if issuedAt.Before(now.Add(-policy.MaxMessageAge)) {
		return ErrMessageExpired
	}

	if msg.ExpirationTime != "" {
		expiresAt, err := time.Parse(time.RFC3339, msg.ExpirationTime)
		if err != nil {
			return ErrInvalidExpirationTime
		}
		if !expiresAt.After(now) {
			return ErrMessageExpired
		}
	}

	return nil
}
