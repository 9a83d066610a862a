package verifier

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/prizepool/warden/core"
	"github.com/prizepool/warden/ports"
)

// EthVerifier verifies EIP-191 personal-message signatures by recovering the
// signing address from the signature. Format inspection alone never passes.
type EthVerifier struct {
	logger *zap.Logger
}

var _ ports.SignatureVerifier = (*EthVerifier)(nil)

// NewEthVerifier creates a verifier
func NewEthVerifier(logger *zap.Logger) *EthVerifier {
	return &EthVerifier{logger: logger}
}

// Verify recovers the signer of message and compares it to address
func (v *EthVerifier) Verify(address string, message string, signature string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, core.ErrInvalidAddress
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return false, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidSignature)
	}

	// Normalize the recovery id (27/28 -> 0/1)
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	digest := accounts.TextHash([]byte(message))
	pubKey, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return false, fmt.Errorf("failed to recover public key: %w", core.ErrInvalidSignature)
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	matches := strings.EqualFold(recovered.Hex(), address)
	if !matches && v.logger != nil {
		v.logger.Debug("recovered address mismatch",
			zap.String("claimed", address),
			zap.String("recovered", recovered.Hex()),
		)
	}
	return matches, nil
}
