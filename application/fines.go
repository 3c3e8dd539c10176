package application

import (
	"context"
	"fmt"

	"ledgerbot/application/dto"
	"ledgerbot/domain"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/services"

	log "github.com/sirupsen/logrus"
)

// ProcessFine debits user for a moderation violation and credits fine revenue
func (e *LedgerEngine) ProcessFine(ctx context.Context, user entities.AccountID, amount entities.Amount, violationRef string, note string) (*dto.OperationResult, error) {
	description := fmt.Sprintf("fine for violation %s", violationRef)
	if note != "" {
		description = fmt.Sprintf("%s: %s", description, note)
	}
	return e.chargeUser(ctx, "fine", entities.EntryTypeFine, user, amount, description)
}

// ProcessBail debits user to lift a restriction and credits fine revenue
func (e *LedgerEngine) ProcessBail(ctx context.Context, user entities.AccountID, amount entities.Amount, note string) (*dto.OperationResult, error) {
	description := "bail"
	if note != "" {
		description = fmt.Sprintf("bail: %s", note)
	}
	return e.chargeUser(ctx, "bail", entities.EntryTypeBail, user, amount, description)
}

func (e *LedgerEngine) chargeUser(ctx context.Context, operation string, entryType entities.EntryType, user entities.AccountID, amount entities.Amount, description string) (*dto.OperationResult, error) {
	if !user.IsUser() {
		err := fmt.Errorf("%s target %s is not a user: %w", operation, e.cfg.Accounts.Name(user), domain.ErrAccountUnresolved)
		e.record(operation, err)
		return nil, err
	}

	revenue := e.cfg.Accounts.FineRevenue
	entries, err := e.posting.BuildTransfer(services.TransferParameters{
		From:        user,
		To:          revenue,
		Amount:      amount,
		Type:        entryType,
		Description: description,
	})
	if err != nil {
		e.record(operation, err)
		return nil, err
	}

	var result *dto.OperationResult
	err = e.withLocks(ctx, operation, []entities.AccountID{user, revenue}, func(ctx context.Context) error {
		return e.inTransaction(ctx, func(uow UnitOfWork) error {
			changes, err := e.applyEntries(ctx, uow, entries)
			if err != nil {
				return err
			}
			result = &dto.OperationResult{
				GroupID:      entries[0].GroupID,
				AccountID:    user,
				Amount:       amount,
				NewBalance:   changes[0].BalanceAfter,
				Counterparty: entities.AccountRef(revenue),
			}
			return nil
		})
	})
	e.record(operation, err)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"operation": operation,
		"accountId": user,
		"amount":    amount.String(),
	}).Info("User charged")
	return result, nil
}

// ProcessAdjustment applies a manual correction. Against the reserve it is a
// single-sided entry that changes the internal total; against any other
// account it is balanced by the reserve. A positive amount credits account.
func (e *LedgerEngine) ProcessAdjustment(ctx context.Context, account entities.AccountID, signedAmount entities.Amount, note string) (*dto.OperationResult, error) {
	if signedAmount == 0 {
		err := fmt.Errorf("%w: adjustment amount cannot be zero", domain.ErrInvalidAmount)
		e.record("adjustment", err)
		return nil, err
	}

	reserve := e.cfg.Accounts.Reserve
	magnitude := signedAmount.Abs()

	var entries []*entities.LedgerEntry
	var err error
	if account == reserve {
		side := entities.EntrySideCredit
		if signedAmount < 0 {
			side = entities.EntrySideDebit
		}
		var entry *entities.LedgerEntry
		entry, err = e.posting.BuildSingle(services.SingleParameters{
			Account:     reserve,
			Side:        side,
			Amount:      magnitude,
			Type:        entities.EntryTypeAdjustment,
			Description: note,
		})
		if entry != nil {
			entries = []*entities.LedgerEntry{entry}
		}
	} else {
		from, to := reserve, account
		if signedAmount < 0 {
			from, to = account, reserve
		}
		entries, err = e.posting.BuildTransfer(services.TransferParameters{
			From:        from,
			To:          to,
			Amount:      magnitude,
			Type:        entities.EntryTypeAdjustment,
			Description: note,
		})
	}
	if err != nil {
		e.record("adjustment", err)
		return nil, err
	}

	var result *dto.OperationResult
	err = e.withLocks(ctx, "adjustment", []entities.AccountID{account, reserve}, func(ctx context.Context) error {
		return e.inTransaction(ctx, func(uow UnitOfWork) error {
			changes, err := e.applyEntries(ctx, uow, entries)
			if err != nil {
				return err
			}
			result = &dto.OperationResult{
				GroupID:   entries[0].GroupID,
				AccountID: account,
				Amount:    signedAmount,
			}
			for _, change := range changes {
				if change.AccountID == account {
					result.NewBalance = change.BalanceAfter
				}
			}
			if account != reserve {
				result.Counterparty = entities.AccountRef(reserve)
			}
			return nil
		})
	})
	e.record("adjustment", err)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"account": e.cfg.Accounts.Name(account),
		"amount":  signedAmount.String(),
		"note":    note,
	}).Warn("Manual adjustment applied")
	return result, nil
}
