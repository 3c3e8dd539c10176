package events

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange          EventType = "balance_change"
	EventTypeDepositCredited        EventType = "deposit_credited"
	EventTypeWithdrawalFailed       EventType = "withdrawal_failed"
	EventTypeReconciliationMismatch EventType = "reconciliation_mismatch"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a committed balance change of one account.
// Amounts are minor units.
type BalanceChangeEvent struct {
	AccountID    int64  `json:"account_id"`
	EntryID      int64  `json:"entry_id"`
	GroupID      string `json:"group_id"`
	EntryType    string `json:"entry_type"`
	OldBalance   int64  `json:"old_balance"`
	NewBalance   int64  `json:"new_balance"`
	ChangeAmount int64  `json:"change_amount"`
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// DepositCreditedEvent is published once per distinct on-chain deposit
type DepositCreditedEvent struct {
	TxHash    string `json:"tx_hash"`
	AccountID int64  `json:"account_id"`
	Amount    int64  `json:"amount"`
	Unclaimed bool   `json:"unclaimed"`
}

func (e DepositCreditedEvent) Type() EventType {
	return EventTypeDepositCredited
}

// WithdrawalFailedEvent is published after a failed withdrawal was compensated
type WithdrawalFailedEvent struct {
	FailureID      int64  `json:"failure_id"`
	AccountID      int64  `json:"account_id"`
	ToAddress      string `json:"to_address"`
	Amount         int64  `json:"amount"`
	OutcomeUnknown bool   `json:"outcome_unknown"`
	Error          string `json:"error"`
}

func (e WithdrawalFailedEvent) Type() EventType {
	return EventTypeWithdrawalFailed
}

// ReconciliationMismatchEvent carries the drift observed by a reconciliation run
type ReconciliationMismatchEvent struct {
	InternalTotal int64  `json:"internal_total"`
	OnChainTotal  int64  `json:"on_chain_total"`
	Difference    int64  `json:"difference"`
	Direction     string `json:"direction"`
}

func (e ReconciliationMismatchEvent) Type() EventType {
	return EventTypeReconciliationMismatch
}
