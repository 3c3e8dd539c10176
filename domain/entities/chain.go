package entities

import "strings"

// NormalizeTxHash returns the canonical form of an EVM tx hash: lowercase hex
// with a 0x prefix. Deposits are deduplicated on this form.
func NormalizeTxHash(hash string) string {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if hash == "" {
		return ""
	}
	return "0x" + strings.TrimPrefix(hash, "0x")
}

// VerifiedTransfer is an incoming treasury transfer confirmed by chain verification
type VerifiedTransfer struct {
	TxHash      string `json:"tx_hash"`
	Amount      Amount `json:"amount"`
	FromAddress string `json:"from_address"`
	Memo        string `json:"memo"`
	Height      int64  `json:"height"`
}

// VerificationStatus tags the outcome of verifying an incoming transfer
type VerificationStatus string

const (
	VerificationVerified  VerificationStatus = "verified"
	VerificationNotFound  VerificationStatus = "not_found"
	VerificationMalformed VerificationStatus = "malformed"
)

// VerificationResult is the parsed answer of the chain gateway for one tx hash.
// Transfer is set only when Status is VerificationVerified.
type VerificationResult struct {
	Status   VerificationStatus
	Transfer *VerifiedTransfer
	Reason   string
}

// Verified builds a successful verification result
func Verified(t VerifiedTransfer) VerificationResult {
	return VerificationResult{Status: VerificationVerified, Transfer: &t}
}

// NotFound builds a result for a hash the chain does not know
func NotFound(reason string) VerificationResult {
	return VerificationResult{Status: VerificationNotFound, Reason: reason}
}

// Malformed builds a result for a transaction that exists but is not a usable deposit
func Malformed(reason string) VerificationResult {
	return VerificationResult{Status: VerificationMalformed, Reason: reason}
}
