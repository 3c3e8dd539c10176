package interfaces

import (
	"context"
	"time"

	"ledgerbot/domain/entities"
	"ledgerbot/domain/events"

	"github.com/google/uuid"
)

// AccountRepository defines the interface for the balance table
type AccountRepository interface {
	// GetByID retrieves an account, returning nil if it does not exist
	GetByID(ctx context.Context, id entities.AccountID) (*entities.Account, error)

	// GetForUpdate retrieves an account and holds its row until the transaction ends
	GetForUpdate(ctx context.Context, id entities.AccountID) (*entities.Account, error)

	// EnsureAccount returns the account, creating it with a zero balance if missing
	EnsureAccount(ctx context.Context, id entities.AccountID) (*entities.Account, error)

	// UpdateBalance sets the cached balance of an account
	UpdateBalance(ctx context.Context, id entities.AccountID, newBalance entities.Amount) error

	// SumBalances returns the total of all balances except the excluded accounts
	SumBalances(ctx context.Context, exclude []entities.AccountID) (entities.Amount, error)

	// GetAll returns every account ordered by id
	GetAll(ctx context.Context) ([]*entities.Account, error)
}

// LedgerEntryRepository defines the interface for the append-only entry log
type LedgerEntryRepository interface {
	// Create inserts an entry and sets its ID and CreatedAt
	Create(ctx context.Context, entry *entities.LedgerEntry) error

	// GetByGroup returns all entries of one operation ordered by id
	GetByGroup(ctx context.Context, groupID uuid.UUID) ([]*entities.LedgerEntry, error)

	// Settle moves a pending entry to completed or failed.
	// Returns domain.ErrEntryNotPending if the entry is not pending.
	Settle(ctx context.Context, id int64, status entities.EntryStatus, txHash *string) error

	// ListByAccount returns the newest entries of an account
	ListByAccount(ctx context.Context, accountID entities.AccountID, limit int) ([]*entities.LedgerEntry, error)

	// FoldBalances sums signed entry amounts per account
	FoldBalances(ctx context.Context) (map[entities.AccountID]entities.Amount, error)
}

// DepositRepository defines the interface for the deposit dedup table
type DepositRepository interface {
	// InsertIfAbsent atomically inserts a pending deposit unless its tx hash is known.
	// It returns the stored row and whether this call created it.
	InsertIfAbsent(ctx context.Context, deposit *entities.ProcessedDeposit) (*entities.ProcessedDeposit, bool, error)

	// GetByTxHash retrieves a deposit, returning nil if the hash is unknown
	GetByTxHash(ctx context.Context, txHash string) (*entities.ProcessedDeposit, error)

	// MarkProcessed flips processed to true only if it is still false.
	// Returns false when another caller already processed the deposit.
	MarkProcessed(ctx context.Context, txHash string, userID entities.AccountID, groupID uuid.UUID, balanceAfter entities.Amount, at time.Time) (bool, error)

	// RecordError stores the failure reason on an unprocessed deposit
	RecordError(ctx context.Context, txHash string, reason string) error

	// ListFailed returns unprocessed deposits that carry an error
	ListFailed(ctx context.Context, limit int) ([]*entities.ProcessedDeposit, error)
}

// GatewayFailureRepository defines the interface for operator-visible gateway failures
type GatewayFailureRepository interface {
	// Create inserts a failure record and sets its ID and CreatedAt
	Create(ctx context.Context, failure *entities.GatewayFailure) error

	// GetByID retrieves a failure, returning nil if it does not exist
	GetByID(ctx context.Context, id int64) (*entities.GatewayFailure, error)

	// List returns failure records, newest first
	List(ctx context.Context, unresolvedOnly bool, limit int) ([]*entities.GatewayFailure, error)

	// Resolve closes an open failure record.
	// Returns domain.ErrFailureNotFound if no open record has this id.
	Resolve(ctx context.Context, id int64, note string, at time.Time) error
}

// LockManager issues short-lived leases that serialize operations on a key
type LockManager interface {
	// Acquire returns domain.ErrLockBusy immediately if a live lease holds key
	Acquire(ctx context.Context, key string, holder string, ttl time.Duration) (*entities.Lock, error)

	// Release deletes the lease only if its token still matches
	Release(ctx context.Context, lock *entities.Lock) error

	// SweepExpired deletes leases past their expiry and returns how many were removed
	SweepExpired(ctx context.Context) (int, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	Publish(event events.Event) error
}

// TransactionalEventPublisher holds events until the owning transaction resolves
type TransactionalEventPublisher interface {
	EventPublisher

	// Flush publishes all pending events
	Flush(ctx context.Context) error

	// Discard drops all pending events
	Discard()
}
