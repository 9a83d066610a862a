package verifier

import (
	"crypto/ecdsa"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func signPersonal(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func TestVerifyValidSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	v := NewEthVerifier(zap.NewNop())
	message := "example.org wants you to sign in with your Ethereum account:"

	ok, err := v.Verify(address, message, signPersonal(t, key, message))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyCaseInsensitiveAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	v := NewEthVerifier(zap.NewNop())
	message := "hello"
	sig := signPersonal(t, key, message)

	ok, err := v.Verify(strings.ToLower(address), message, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyWrongMessage(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	v := NewEthVerifier(zap.NewNop())
	sig := signPersonal(t, key, "original message")

	ok, err := v.Verify(address, "tampered message", sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyWrongAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	v := NewEthVerifier(zap.NewNop())
	message := "hello"
	sig := signPersonal(t, key, message)

	ok, err := v.Verify(crypto.PubkeyToAddress(otherKey.PublicKey).Hex(), message, sig)
	require.NoError(t, err)
	require.False(t, ok)
}

// A well-formed hex prefix must never be enough on its own; recovery has to
// actually succeed and match
func TestVerifyRejectsFormatOnlySignatures(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	v := NewEthVerifier(zap.NewNop())

	cases := []string{
		"0x",
		"0xdeadbeef",
		"0x" + strings.Repeat("00", 65),
		"not-hex-at-all",
	}
	for _, sig := range cases {
		ok, err := v.Verify(address, "message", sig)
		require.False(t, ok, "signature %q must not verify", sig)
		require.Error(t, err)
	}
}

func TestVerifyInvalidAddress(t *testing.T) {
	v := NewEthVerifier(zap.NewNop())
	ok, err := v.Verify("banana", "message", "0x00")
	require.False(t, ok)
	require.Error(t, err)
}
