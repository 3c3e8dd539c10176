package entities

import (
	"time"

	"github.com/google/uuid"
)

// GatewayFailure records an outbound transfer the chain gateway did not confirm.
// The ledger has already been compensated; the record exists for a human to investigate.
type GatewayFailure struct {
	ID             int64      `db:"id"`
	AccountID      AccountID  `db:"account_id"`
	EntryGroupID   uuid.UUID  `db:"entry_group_id"`
	ToAddress      string     `db:"to_address"`
	Amount         Amount     `db:"amount"`
	Error          string     `db:"error"`
	OutcomeUnknown bool       `db:"outcome_unknown"`
	CreatedAt      time.Time  `db:"created_at"`
	ResolvedAt     *time.Time `db:"resolved_at"`
	ResolutionNote *string    `db:"resolution_note"`
}

// IsResolved reports whether an operator has closed the record
func (f *GatewayFailure) IsResolved() bool {
	return f.ResolvedAt != nil
}
