package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerbot/application/dto"
	"ledgerbot/domain"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/events"
	"ledgerbot/domain/interfaces"
	"ledgerbot/domain/services"

	log "github.com/sirupsen/logrus"
)

// Operation outcomes reported to metrics
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// LedgerConfig holds the tunables of the ledger engine
type LedgerConfig struct {
	Accounts entities.SystemAccounts

	// HolderID identifies this process in lock leases
	HolderID string

	LockTTL            time.Duration
	LockAcquireWait    time.Duration
	GatewayTimeout     time.Duration
	ReconcileTolerance entities.Amount
}

// DefaultLedgerConfig returns the production defaults
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Accounts:       entities.DefaultSystemAccounts(),
		HolderID:       "ledger",
		LockTTL:        2 * time.Minute,
		GatewayTimeout: 45 * time.Second,
	}
}

// LedgerEngine applies every balance mutation of the system.
// Each operation takes the locks of the accounts it touches, writes inside one
// unit of work and releases the locks on every exit path.
type LedgerEngine struct {
	uowFactory UnitOfWorkFactory
	locks      interfaces.LockManager
	gateway    interfaces.ChainGateway
	alerter    interfaces.Alerter
	posting    *services.PostingService
	metrics    Metrics
	cfg        LedgerConfig
	now        func() time.Time
}

// NewLedgerEngine creates a new ledger engine
func NewLedgerEngine(
	uowFactory UnitOfWorkFactory,
	locks interfaces.LockManager,
	gateway interfaces.ChainGateway,
	alerter interfaces.Alerter,
	cfg LedgerConfig,
) *LedgerEngine {
	return &LedgerEngine{
		uowFactory: uowFactory,
		locks:      locks,
		gateway:    gateway,
		alerter:    alerter,
		posting:    services.NewPostingService(cfg.Accounts),
		metrics:    noopMetrics{},
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetMetrics replaces the metrics sink
func (e *LedgerEngine) SetMetrics(m Metrics) {
	if m != nil {
		e.metrics = m
	}
}

// SetClock replaces the time source used for deposit staleness and timestamps
func (e *LedgerEngine) SetClock(now func() time.Time) {
	e.now = now
}

// Accounts returns the system accounts the engine was built with
func (e *LedgerEngine) Accounts() entities.SystemAccounts {
	return e.cfg.Accounts
}

// Transfer moves amount from one account to another
func (e *LedgerEngine) Transfer(ctx context.Context, from, to entities.AccountID, amount entities.Amount, note string) (*dto.TransferResult, error) {
	entries, err := e.posting.BuildTransfer(services.TransferParameters{
		From:        from,
		To:          to,
		Amount:      amount,
		Type:        entities.EntryTypeTransfer,
		Description: note,
	})
	if err != nil {
		e.record("transfer", err)
		return nil, err
	}

	var result *dto.TransferResult
	err = e.withLocks(ctx, "transfer", []entities.AccountID{from, to}, func(ctx context.Context) error {
		return e.inTransaction(ctx, func(uow UnitOfWork) error {
			changes, err := e.applyEntries(ctx, uow, entries)
			if err != nil {
				return err
			}
			result = &dto.TransferResult{
				GroupID:     entries[0].GroupID,
				From:        from,
				To:          to,
				Amount:      amount,
				FromBalance: changes[0].BalanceAfter,
				ToBalance:   changes[1].BalanceAfter,
			}
			return nil
		})
	})
	e.record("transfer", err)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"from":    from,
		"to":      to,
		"amount":  amount.String(),
		"groupId": result.GroupID,
	}).Info("Transfer completed")
	return result, nil
}

// GetBalance returns the cached balance of an account, zero if it has never been credited
func (e *LedgerEngine) GetBalance(ctx context.Context, account entities.AccountID) (entities.Amount, error) {
	var balance entities.Amount
	err := e.inTransaction(ctx, func(uow UnitOfWork) error {
		acct, err := uow.AccountRepository().GetByID(ctx, account)
		if err != nil {
			return err
		}
		if acct != nil {
			balance = acct.Balance
		}
		return nil
	})
	return balance, err
}

// AccountExists reports whether the account has a balance row
func (e *LedgerEngine) AccountExists(ctx context.Context, account entities.AccountID) (bool, error) {
	var exists bool
	err := e.inTransaction(ctx, func(uow UnitOfWork) error {
		acct, err := uow.AccountRepository().GetByID(ctx, account)
		if err != nil {
			return err
		}
		exists = acct != nil
		return nil
	})
	return exists, err
}

// History returns the newest ledger entries of an account
func (e *LedgerEngine) History(ctx context.Context, account entities.AccountID, limit int) ([]*entities.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []*entities.LedgerEntry
	err := e.inTransaction(ctx, func(uow UnitOfWork) error {
		var err error
		entries, err = uow.LedgerEntryRepository().ListByAccount(ctx, account, limit)
		return err
	})
	return entries, err
}

// inTransaction runs fn inside a fresh unit of work and commits when it returns nil
func (e *LedgerEngine) inTransaction(ctx context.Context, fn func(uow UnitOfWork) error) error {
	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := fn(uow); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// applyEntries inserts entries and updates the cached balances they touch.
// Credits create missing user and system accounts; debits require the account to exist.
func (e *LedgerEngine) applyEntries(ctx context.Context, uow UnitOfWork, entries []*entities.LedgerEntry) ([]*entities.BalanceChange, error) {
	if err := e.posting.CheckConservation(entries); err != nil {
		return nil, err
	}

	accountRepo := uow.AccountRepository()
	entryRepo := uow.LedgerEntryRepository()

	balances := make(map[entities.AccountID]entities.Amount)
	changes := make([]*entities.BalanceChange, 0, len(entries))

	for _, entry := range entries {
		balance, loaded := balances[entry.AccountID]
		if !loaded {
			acct, err := e.loadAccount(ctx, accountRepo, entry)
			if err != nil {
				return nil, err
			}
			balance = acct.Balance
		}

		change, err := e.posting.ApplyEntry(balance, entry)
		if err != nil {
			return nil, err
		}

		if err := entryRepo.Create(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to record %s entry: %w", entry.Type, err)
		}
		if err := accountRepo.UpdateBalance(ctx, entry.AccountID, change.BalanceAfter); err != nil {
			return nil, fmt.Errorf("failed to update balance of %d: %w", entry.AccountID, err)
		}

		change.EntryID = entry.ID
		balances[entry.AccountID] = change.BalanceAfter
		changes = append(changes, change)

		if err := uow.EventBus().Publish(events.BalanceChangeEvent{
			AccountID:    int64(entry.AccountID),
			EntryID:      entry.ID,
			GroupID:      entry.GroupID.String(),
			EntryType:    entry.Type.String(),
			OldBalance:   int64(change.BalanceBefore),
			NewBalance:   int64(change.BalanceAfter),
			ChangeAmount: int64(change.ChangeAmount),
		}); err != nil {
			return nil, fmt.Errorf("failed to publish balance change: %w", err)
		}
	}

	return changes, nil
}

func (e *LedgerEngine) loadAccount(ctx context.Context, repo interfaces.AccountRepository, entry *entities.LedgerEntry) (*entities.Account, error) {
	if entry.Side == entities.EntrySideCredit {
		if !entry.AccountID.IsUser() && !e.cfg.Accounts.IsSystem(entry.AccountID) {
			return nil, fmt.Errorf("account %d: %w", entry.AccountID, domain.ErrAccountUnresolved)
		}
		if _, err := repo.EnsureAccount(ctx, entry.AccountID); err != nil {
			return nil, fmt.Errorf("failed to ensure account %d: %w", entry.AccountID, err)
		}
	}

	acct, err := repo.GetForUpdate(ctx, entry.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %d: %w", entry.AccountID, err)
	}
	if acct == nil {
		return nil, fmt.Errorf("%s: %w", e.cfg.Accounts.Name(entry.AccountID), domain.ErrAccountUnresolved)
	}
	return acct, nil
}

// record reports the outcome of an operation to metrics
func (e *LedgerEngine) record(operation string, err error) {
	switch {
	case err == nil:
		e.metrics.RecordLedgerOperation(operation, OutcomeSuccess)
	case isRejection(err):
		e.metrics.RecordLedgerOperation(operation, OutcomeRejected)
	default:
		e.metrics.RecordLedgerOperation(operation, OutcomeError)
	}
}

// isRejection reports whether err is a caller-correctable refusal with no effect
func isRejection(err error) bool {
	return errors.Is(err, domain.ErrInsufficientBalance) ||
		errors.Is(err, domain.ErrAccountUnresolved) ||
		errors.Is(err, domain.ErrLockBusy) ||
		errors.Is(err, domain.ErrInvalidAmount) ||
		errors.Is(err, domain.ErrSameAccount) ||
		errors.Is(err, domain.ErrInvalidGiveaway) ||
		errors.Is(err, domain.ErrInvalidAddress)
}

// alert sends an operator notification and only logs if delivery fails
func (e *LedgerEngine) alert(ctx context.Context, title, message string) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Alert(ctx, title, message); err != nil {
		log.WithError(err).WithField("title", title).Error("Failed to deliver operator alert")
	}
}
