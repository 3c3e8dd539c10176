package application

import (
	"context"

	"ledgerbot/application/dto"
	"ledgerbot/domain/entities"
)

// Metrics records ledger activity. The observability provider implements it.
type Metrics interface {
	RecordLedgerOperation(operation string, outcome string)
	RecordLockRejected(operation string)
	RecordDeposit(outcome string)
	RecordGatewayFailure(outcomeUnknown bool)
	RecordReconciliation(difference int64, matched bool)
}

// DepositProcessor is the part of the ledger the deposit reconciler drives
type DepositProcessor interface {
	ProcessDeposit(ctx context.Context, req dto.DepositRequest) (*dto.DepositResult, error)
	AccountExists(ctx context.Context, id entities.AccountID) (bool, error)
}

// AddressValidator is implemented by gateways that can reject a destination
// address before any balance is touched
type AddressValidator interface {
	ValidateAddress(address string) error
}

// AmountValidator is implemented by gateways that can only move some amounts,
// such as tokens with fewer decimals than the ledger
type AmountValidator interface {
	ValidateAmount(amount entities.Amount) error
}

type noopMetrics struct{}

func (noopMetrics) RecordLedgerOperation(string, string) {}
func (noopMetrics) RecordLockRejected(string)            {}
func (noopMetrics) RecordDeposit(string)                 {}
func (noopMetrics) RecordGatewayFailure(bool)            {}
func (noopMetrics) RecordReconciliation(int64, bool)     {}
