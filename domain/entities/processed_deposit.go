package entities

import (
	"time"

	"github.com/google/uuid"
)

// DepositState is the processing state of an on-chain deposit
type DepositState string

const (
	DepositStateUnseen    DepositState = "unseen"
	DepositStatePending   DepositState = "pending"
	DepositStateProcessed DepositState = "processed"
	DepositStateFailed    DepositState = "failed"
)

// ProcessedDeposit is the dedup record of an on-chain deposit, unique by tx hash
type ProcessedDeposit struct {
	ID           int64      `db:"id"`
	TxHash       string     `db:"external_tx_hash"`
	UserID       AccountID  `db:"user_id"`
	Amount       Amount     `db:"amount"`
	FromAddress  string     `db:"from_address"`
	Memo         string     `db:"memo"`
	ChainHeight  int64      `db:"chain_height"`
	Processed    bool       `db:"processed"`
	ProcessedAt  *time.Time `db:"processed_at"`
	Error        *string    `db:"error"`
	EntryGroupID *uuid.UUID `db:"entry_group_id"`
	BalanceAfter *Amount    `db:"balance_after"`
	CreatedAt    time.Time  `db:"created_at"`
}

// State derives the state machine position from the stored columns
func (d *ProcessedDeposit) State() DepositState {
	switch {
	case d == nil:
		return DepositStateUnseen
	case d.Processed:
		return DepositStateProcessed
	case d.Error != nil:
		return DepositStateFailed
	default:
		return DepositStatePending
	}
}
