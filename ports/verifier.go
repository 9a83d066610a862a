package ports

// SignatureVerifier checks that a signature over a message was produced by the
// claimed address via cryptographic recovery, not format inspection.
type SignatureVerifier interface {
	// Verify recovers the signing address from message and signature and
	// compares it case-insensitively to address
	Verify(address string, message string, signature string) (bool, error)
}
