// Package bridge provides wallet bridge adapters. The in-process LocalBridge
// signs with its own key and exists for development mode and end-to-end tests;
// production deployments talk to the host application's wallet instead.
package bridge

import (
	"context"
	"crypto/ecdsa"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/prizepool/warden/core"
	"github.com/prizepool/warden/ports"
)

// LocalBridge signs sign-in requests with an in-process key
type LocalBridge struct {
	key     *ecdsa.PrivateKey
	domain  string
	uri     string
	chainID int64

	// AddressOnly makes the bridge return a bare address with no signed
	// message, mimicking an address-only development connection
	AddressOnly bool
}

var _ ports.WalletBridge = (*LocalBridge)(nil)

// NewLocalBridge creates a bridge signing for the given domain, URI and chain
func NewLocalBridge(key *ecdsa.PrivateKey, domain, uri string, chainID int64) *LocalBridge {
	return &LocalBridge{
		key:     key,
		domain:  domain,
		uri:     uri,
		chainID: chainID,
	}
}

// Address returns the bridge key's address
func (b *LocalBridge) Address() string {
	return crypto.PubkeyToAddress(b.key.PublicKey).Hex()
}

// Available always reports true for the local bridge
func (b *LocalBridge) Available() bool {
	return true
}

// RequestSignature builds the sign-in message for the request and signs it
func (b *LocalBridge) RequestSignature(ctx context.Context, req ports.SignRequest) (ports.SignResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.SignResult{}, err
	}

	address := b.Address()
	if b.AddressOnly {
		return ports.SignResult{
			Status:  ports.BridgeStatusSuccess,
			Address: address,
		}, nil
	}

	params := core.SiweParams{
		Domain:    b.domain,
		Address:   address,
		Statement: req.Statement,
		URI:       b.uri,
		ChainID:   b.chainID,
		Nonce:     req.Nonce,
		IssuedAt:  time.Now(),
	}
	if req.ExpirationTime != "" {
		if t, err := time.Parse(time.RFC3339, req.ExpirationTime); err == nil {
			params.ExpirationTime = t
		}
	}
	if req.NotBefore != "" {
		if t, err := time.Parse(time.RFC3339, req.NotBefore); err == nil {
			params.NotBefore = t
		}
	}

	message := core.BuildMessage(params)
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), b.key)
	if err != nil {
		return ports.SignResult{}, err
	}
	// Wallets emit v as 27/28
	sig[crypto.RecoveryIDOffset] += 27

	return ports.SignResult{
		Status:    ports.BridgeStatusSuccess,
		Address:   address,
		Message:   message,
		Signature: hexutil.Encode(sig),
	}, nil
}
