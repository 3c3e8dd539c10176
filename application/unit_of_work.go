package application

import (
	"context"

	"ledgerbot/domain/interfaces"
)

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	AccountRepository() interfaces.AccountRepository
	LedgerEntryRepository() interfaces.LedgerEntryRepository
	DepositRepository() interfaces.DepositRepository
	GatewayFailureRepository() interfaces.GatewayFailureRepository
	EventBus() interfaces.EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	// Create creates a new UnitOfWork for a single ledger operation
	Create() UnitOfWork
}
