package ports

import "context"

// Wallet bridge status values
const (
	BridgeStatusSuccess = "success"
	BridgeStatusError   = "error"
)

// Wallet bridge error codes surfaced to classification
const (
	BridgeErrUserRejected = "user_rejected"
	BridgeErrWalletLocked = "wallet_locked"
)

// SignRequest asks the wallet host to sign a sign-in message
type SignRequest struct {
	Nonce          string `json:"nonce"`
	RequestID      string `json:"requestId"`
	Statement      string `json:"statement"`
	ExpirationTime string `json:"expirationTime,omitempty"`
	NotBefore      string `json:"notBefore,omitempty"`
}

// SignResult is the wallet host's response. On success Address is always set;
// Message and Signature may be absent for address-only development connections.
type SignResult struct {
	Status    string `json:"status"`
	Address   string `json:"address,omitempty"`
	Message   string `json:"message,omitempty"`
	Signature string `json:"signature,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// WalletBridge is the host application's signing capability. It is an external
// collaborator: given a nonce and statement it asynchronously returns either a
// signed message or a rejection code.
type WalletBridge interface {
	// Available reports whether the environment can perform wallet signing
	Available() bool

	// RequestSignature asks the user's wallet to sign. The call is expected to
	// honor ctx cancellation and deadlines.
	RequestSignature(ctx context.Context, req SignRequest) (SignResult, error)
}
