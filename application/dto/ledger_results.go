package dto

import (
	"ledgerbot/domain/entities"

	"github.com/google/uuid"
)

// TransferResult is returned by a successful internal transfer
type TransferResult struct {
	GroupID     uuid.UUID          `json:"group_id"`
	From        entities.AccountID `json:"from"`
	To          entities.AccountID `json:"to"`
	Amount      entities.Amount    `json:"amount"`
	FromBalance entities.Amount    `json:"from_balance"`
	ToBalance   entities.Amount    `json:"to_balance"`
}

// DepositRequest asks the ledger to credit one on-chain deposit.
// A non-positive User routes the credit to the unclaimed account.
type DepositRequest struct {
	User        entities.AccountID
	Amount      entities.Amount
	TxHash      string
	FromAddress string
	Memo        string
	Height      int64
	Note        string
}

// DepositResult is returned for both first-time and duplicate deposits
type DepositResult struct {
	TxHash     string             `json:"tx_hash"`
	AccountID  entities.AccountID `json:"account_id"`
	Amount     entities.Amount    `json:"amount"`
	GroupID    uuid.UUID          `json:"group_id"`
	NewBalance entities.Amount    `json:"new_balance"`
	Unclaimed  bool               `json:"unclaimed"`
	Duplicate  bool               `json:"duplicate"`
}

// WithdrawalResult is returned once the chain accepted an outbound transfer
type WithdrawalResult struct {
	EntryID    int64              `json:"entry_id"`
	GroupID    uuid.UUID          `json:"group_id"`
	AccountID  entities.AccountID `json:"account_id"`
	ToAddress  string             `json:"to_address"`
	Amount     entities.Amount    `json:"amount"`
	TxHash     string             `json:"tx_hash"`
	NewBalance entities.Amount    `json:"new_balance"`
}

// OperationResult is returned by fines, bail and adjustments
type OperationResult struct {
	GroupID      uuid.UUID           `json:"group_id"`
	AccountID    entities.AccountID  `json:"account_id"`
	Amount       entities.Amount     `json:"amount"`
	NewBalance   entities.Amount     `json:"new_balance"`
	Counterparty *entities.AccountID `json:"counterparty,omitempty"`
}

// GiveawayResult is returned by escrow operations
type GiveawayResult struct {
	GiveawayID     int64              `json:"giveaway_id"`
	GroupID        uuid.UUID          `json:"group_id"`
	AccountID      entities.AccountID `json:"account_id"`
	Amount         entities.Amount    `json:"amount"`
	AccountBalance entities.Amount    `json:"account_balance"`
	EscrowBalance  entities.Amount    `json:"escrow_balance"`
}
