package entities

import (
	"fmt"
	"time"

	"ledgerbot/domain"
)

// Drift directions reported by reconciliation
const (
	DriftNone          = "none"
	DriftInternalOver  = "internal_over"
	DriftInternalUnder = "internal_under"
)

// ReconciliationReport compares the ledger's aggregate to the treasury's on-chain balance
type ReconciliationReport struct {
	InternalTotal Amount    `json:"internal_total"`
	OnChainTotal  Amount    `json:"on_chain_total"`
	Difference    Amount    `json:"difference"`
	Tolerance     Amount    `json:"tolerance"`
	Matched       bool      `json:"matched"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Direction says which side holds more value
func (r *ReconciliationReport) Direction() string {
	switch {
	case r.Difference > 0:
		return DriftInternalOver
	case r.Difference < 0:
		return DriftInternalUnder
	default:
		return DriftNone
	}
}

// BalanceMismatch is one account whose cached balance disagrees with its folded entries
type BalanceMismatch struct {
	AccountID AccountID `json:"account_id"`
	Cached    Amount    `json:"cached"`
	Replayed  Amount    `json:"replayed"`
}

// Err returns domain.ErrReconciliationMismatch with the drift when the report did not match
func (r *ReconciliationReport) Err() error {
	if r.Matched {
		return nil
	}
	return fmt.Errorf("%w: internal %s, on-chain %s, difference %s (%s)",
		domain.ErrReconciliationMismatch, r.InternalTotal, r.OnChainTotal, r.Difference, r.Direction())
}
