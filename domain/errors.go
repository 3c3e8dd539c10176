package domain

import "errors"

// Ledger failure taxonomy. Callers match these with errors.Is; every one of them
// means the operation had no effect on balances unless stated otherwise.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccountUnresolved   = errors.New("account unresolved")
	ErrLockBusy            = errors.New("operation already in progress for this account")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrSameAccount         = errors.New("cannot transfer to the same account")

	// ErrGatewayFailure is returned when an outbound chain call failed or timed out.
	// For withdrawals the debit has been compensated by the time it is returned.
	ErrGatewayFailure = errors.New("chain gateway failure")

	// ErrReconciliationMismatch marks drift between the ledger and the treasury.
	// It is reported, never corrected automatically.
	ErrReconciliationMismatch = errors.New("reconciliation mismatch")

	// ErrDepositPending is returned when another worker is crediting the same
	// transaction hash right now.
	ErrDepositPending = errors.New("deposit is being processed")

	ErrEntryNotPending = errors.New("ledger entry is not pending")
	ErrFailureNotFound = errors.New("gateway failure record not found")
	ErrLockNotHeld     = errors.New("lock is not held by this token")
	ErrInvalidGiveaway = errors.New("invalid giveaway")
	ErrInvalidAddress  = errors.New("invalid withdrawal address")

	// Verification outcomes that stop a manual deposit submission.
	ErrTransferNotFound  = errors.New("transfer not found on chain")
	ErrTransferMalformed = errors.New("transfer is not a valid treasury deposit")
)
