package interfaces

import (
	"context"

	"ledgerbot/domain/entities"

	"github.com/shopspring/decimal"
)

// ChainGateway is the boundary to the token's chain
type ChainGateway interface {
	// GetTreasuryBalance returns the treasury's on-chain token balance
	GetTreasuryBalance(ctx context.Context) (entities.Amount, error)

	// SubmitTransfer sends amount from the treasury to toAddress and returns the tx hash
	SubmitTransfer(ctx context.Context, toAddress string, amount entities.Amount) (string, error)

	// VerifyIncomingTransfer inspects a tx hash claimed to be a treasury deposit.
	// A non-nil error means the chain could not be queried.
	VerifyIncomingTransfer(ctx context.Context, txHash string) (entities.VerificationResult, error)
}

// RateProvider quotes the token's price
type RateProvider interface {
	// GetRate returns the USD value of one whole token
	GetRate(ctx context.Context) (decimal.Decimal, error)
}

// Alerter delivers operator notifications
type Alerter interface {
	Alert(ctx context.Context, title string, message string) error
}
