package application

import (
	"context"
	"errors"
	"fmt"

	"ledgerbot/application/dto"
	"ledgerbot/domain"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/events"
	"ledgerbot/domain/services"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Deposit outcomes reported to metrics
const (
	DepositCredited  = "credited"
	DepositDuplicate = "duplicate"
	DepositFailed    = "failed"
)

// errAlreadyProcessed aborts the crediting transaction when another caller won the race
var errAlreadyProcessed = errors.New("deposit already processed")

// ProcessDeposit credits an on-chain deposit exactly once per tx hash.
//
// The dedup row is inserted first in its own transaction so every sighting of
// a hash agrees on one row. Crediting then runs under the target account's
// lock, flipping processed from false to true in the same transaction as the
// credit. A deposit seen again after that returns the first result with
// Duplicate set.
func (e *LedgerEngine) ProcessDeposit(ctx context.Context, req dto.DepositRequest) (*dto.DepositResult, error) {
	req.TxHash = entities.NormalizeTxHash(req.TxHash)
	if req.TxHash == "" {
		return nil, fmt.Errorf("deposit has no tx hash")
	}
	if err := req.Amount.ValidatePositive(); err != nil {
		e.metrics.RecordDeposit(DepositFailed)
		return nil, err
	}

	target := req.User
	if !target.IsUser() {
		target = e.cfg.Accounts.Unclaimed
	}

	var (
		deposit *entities.ProcessedDeposit
		created bool
	)
	err := e.inTransaction(ctx, func(uow UnitOfWork) error {
		var err error
		deposit, created, err = uow.DepositRepository().InsertIfAbsent(ctx, &entities.ProcessedDeposit{
			TxHash:      req.TxHash,
			UserID:      target,
			Amount:      req.Amount,
			FromAddress: req.FromAddress,
			Memo:        req.Memo,
			ChainHeight: req.Height,
		})
		return err
	})
	if err != nil {
		e.metrics.RecordDeposit(DepositFailed)
		return nil, fmt.Errorf("failed to register deposit %s: %w", req.TxHash, err)
	}

	switch deposit.State() {
	case entities.DepositStateProcessed:
		e.metrics.RecordDeposit(DepositDuplicate)
		return e.duplicateResult(ctx, deposit)
	case entities.DepositStatePending:
		// A pending row younger than the lock TTL belongs to a caller still in flight.
		if !created && e.now().Sub(deposit.CreatedAt) < e.cfg.LockTTL {
			return nil, fmt.Errorf("deposit %s: %w", req.TxHash, domain.ErrDepositPending)
		}
	}

	if !created && (deposit.UserID != target || deposit.Amount != req.Amount) {
		log.WithFields(log.Fields{
			"txHash":          req.TxHash,
			"storedAccount":   deposit.UserID,
			"requestAccount":  target,
			"storedAmount":    deposit.Amount.String(),
			"requestedAmount": req.Amount.String(),
		}).Warn("Deposit resubmitted with different routing, keeping the first sighting")
	}

	result, err := e.creditDeposit(ctx, deposit, req.Note)
	if errors.Is(err, errAlreadyProcessed) {
		e.metrics.RecordDeposit(DepositDuplicate)
		stored, lookupErr := e.lookupDeposit(ctx, deposit.TxHash)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return e.duplicateResult(ctx, stored)
	}
	if err != nil {
		e.metrics.RecordDeposit(DepositFailed)
		e.recordDepositError(ctx, deposit.TxHash, err)
		return nil, err
	}

	e.metrics.RecordDeposit(DepositCredited)
	log.WithFields(log.Fields{
		"txHash":    result.TxHash,
		"accountId": result.AccountID,
		"amount":    result.Amount.String(),
		"unclaimed": result.Unclaimed,
	}).Info("Deposit credited")
	return result, nil
}

// creditDeposit applies the credit of a registered deposit under its account lock
func (e *LedgerEngine) creditDeposit(ctx context.Context, deposit *entities.ProcessedDeposit, note string) (*dto.DepositResult, error) {
	description := note
	if description == "" {
		description = fmt.Sprintf("deposit %s", deposit.TxHash)
	}

	entry, err := e.posting.BuildSingle(services.SingleParameters{
		Account:         deposit.UserID,
		Side:            entities.EntrySideCredit,
		Amount:          deposit.Amount,
		Type:            entities.EntryTypeDeposit,
		Description:     description,
		ExternalTxHash:  deposit.TxHash,
		ExternalAddress: deposit.FromAddress,
	})
	if err != nil {
		return nil, err
	}

	var result *dto.DepositResult
	err = e.withLocks(ctx, "deposit", []entities.AccountID{deposit.UserID}, func(ctx context.Context) error {
		return e.inTransaction(ctx, func(uow UnitOfWork) error {
			changes, err := e.applyEntries(ctx, uow, []*entities.LedgerEntry{entry})
			if err != nil {
				return err
			}
			balanceAfter := changes[0].BalanceAfter

			// Losing the processed flip rolls the credit back with the transaction
			marked, err := uow.DepositRepository().MarkProcessed(ctx, deposit.TxHash, deposit.UserID, entry.GroupID, balanceAfter, e.now())
			if err != nil {
				return fmt.Errorf("failed to mark deposit processed: %w", err)
			}
			if !marked {
				return errAlreadyProcessed
			}

			unclaimed := deposit.UserID == e.cfg.Accounts.Unclaimed
			if err := uow.EventBus().Publish(events.DepositCreditedEvent{
				TxHash:    deposit.TxHash,
				AccountID: int64(deposit.UserID),
				Amount:    int64(deposit.Amount),
				Unclaimed: unclaimed,
			}); err != nil {
				return fmt.Errorf("failed to publish deposit event: %w", err)
			}

			result = &dto.DepositResult{
				TxHash:     deposit.TxHash,
				AccountID:  deposit.UserID,
				Amount:     deposit.Amount,
				GroupID:    entry.GroupID,
				NewBalance: balanceAfter,
				Unclaimed:  unclaimed,
			}
			return nil
		})
	})
	return result, err
}

// duplicateResult rebuilds the result of an already processed deposit from the
// balance stored when it was credited
func (e *LedgerEngine) duplicateResult(ctx context.Context, deposit *entities.ProcessedDeposit) (*dto.DepositResult, error) {
	var balance entities.Amount
	if deposit.BalanceAfter != nil {
		balance = *deposit.BalanceAfter
	} else {
		// Rows credited before balance_after existed only know the live balance
		current, err := e.GetBalance(ctx, deposit.UserID)
		if err != nil {
			return nil, err
		}
		balance = current
	}

	var groupID uuid.UUID
	if deposit.EntryGroupID != nil {
		groupID = *deposit.EntryGroupID
	}

	log.WithFields(log.Fields{
		"txHash":    deposit.TxHash,
		"accountId": deposit.UserID,
	}).Info("Deposit already processed, skipping")

	return &dto.DepositResult{
		TxHash:     deposit.TxHash,
		AccountID:  deposit.UserID,
		Amount:     deposit.Amount,
		GroupID:    groupID,
		NewBalance: balance,
		Unclaimed:  deposit.UserID == e.cfg.Accounts.Unclaimed,
		Duplicate:  true,
	}, nil
}

func (e *LedgerEngine) lookupDeposit(ctx context.Context, txHash string) (*entities.ProcessedDeposit, error) {
	var deposit *entities.ProcessedDeposit
	err := e.inTransaction(ctx, func(uow UnitOfWork) error {
		var err error
		deposit, err = uow.DepositRepository().GetByTxHash(ctx, txHash)
		return err
	})
	if err != nil {
		return nil, err
	}
	if deposit == nil {
		return nil, fmt.Errorf("deposit %s disappeared", txHash)
	}
	return deposit, nil
}

// recordDepositError stores why crediting failed so the deposit shows up as retriable
func (e *LedgerEngine) recordDepositError(ctx context.Context, txHash string, cause error) {
	ctx = context.WithoutCancel(ctx)
	err := e.inTransaction(ctx, func(uow UnitOfWork) error {
		return uow.DepositRepository().RecordError(ctx, txHash, cause.Error())
	})
	if err != nil {
		log.WithError(err).WithField("txHash", txHash).Error("Failed to record deposit error")
	}
	log.WithError(cause).WithField("txHash", txHash).Warn("Deposit crediting failed")
}

// FailedDeposits lists deposits waiting for a resubmission
func (e *LedgerEngine) FailedDeposits(ctx context.Context, limit int) ([]*entities.ProcessedDeposit, error) {
	var deposits []*entities.ProcessedDeposit
	err := e.inTransaction(ctx, func(uow UnitOfWork) error {
		var err error
		deposits, err = uow.DepositRepository().ListFailed(ctx, limit)
		return err
	})
	return deposits, err
}
