package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LedgerEntry is one immutable, applied balance mutation of a single account.
// A transfer produces two entries that share a GroupID.
type LedgerEntry struct {
	ID              int64       `db:"id"`
	GroupID         uuid.UUID   `db:"group_id"`
	Type            EntryType   `db:"entry_type"`
	AccountID       AccountID   `db:"account_id"`
	Side            EntrySide   `db:"side"`
	FromAccount     *AccountID  `db:"from_account"`
	ToAccount       *AccountID  `db:"to_account"`
	Amount          Amount      `db:"amount"`
	ExternalTxHash  *string     `db:"external_tx_hash"`
	ExternalAddress *string     `db:"external_address"`
	Status          EntryStatus `db:"status"`
	Description     string      `db:"description"`
	CreatedAt       time.Time   `db:"created_at"`
}

// SignedAmount returns the balance delta this entry applies to its account
func (e *LedgerEntry) SignedAmount() Amount {
	if e.Side == EntrySideDebit {
		return -e.Amount
	}
	return e.Amount
}

// Validate checks the fields of a single entry
func (e *LedgerEntry) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("unknown entry type %q", e.Type)
	}
	if e.Side != EntrySideDebit && e.Side != EntrySideCredit {
		return fmt.Errorf("unknown entry side %q", e.Side)
	}
	if err := e.Amount.ValidatePositive(); err != nil {
		return err
	}
	if e.GroupID == uuid.Nil {
		return fmt.Errorf("entry for account %d has no group id", e.AccountID)
	}
	return nil
}

// BalanceChange describes the effect of one applied entry on its account
type BalanceChange struct {
	AccountID     AccountID
	EntryID       int64
	BalanceBefore Amount
	BalanceAfter  Amount
	ChangeAmount  Amount
	Type          EntryType
}

// AccountRef returns a pointer to a copy of id, for the nullable entry columns
func AccountRef(id AccountID) *AccountID {
	return &id
}

// StringRef returns nil for the empty string and a pointer to s otherwise
func StringRef(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
