package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ledgerbot/application/dto"
	"ledgerbot/domain"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/events"
	"ledgerbot/domain/services"

	log "github.com/sirupsen/logrus"
)

// ProcessWithdrawal debits user and sends amount to address on chain.
//
// The debit is committed as a pending entry before the gateway is called, and
// the account lock is held across the call. On success the entry is completed
// with the chain tx hash. On failure or timeout the entry is marked failed, a
// compensating credit restores the balance and a gateway failure record is
// left for an operator. Failed withdrawals are never retried automatically.
func (e *LedgerEngine) ProcessWithdrawal(ctx context.Context, user entities.AccountID, address string, amount entities.Amount) (*dto.WithdrawalResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		e.record("withdrawal", domain.ErrInvalidAddress)
		return nil, domain.ErrInvalidAddress
	}
	if v, ok := e.gateway.(AddressValidator); ok {
		if err := v.ValidateAddress(address); err != nil {
			e.record("withdrawal", err)
			return nil, err
		}
	}
	if v, ok := e.gateway.(AmountValidator); ok {
		if err := v.ValidateAmount(amount); err != nil {
			e.record("withdrawal", err)
			return nil, err
		}
	}
	if !user.IsUser() {
		err := fmt.Errorf("withdrawals are only allowed from user accounts, got %s: %w", e.cfg.Accounts.Name(user), domain.ErrAccountUnresolved)
		e.record("withdrawal", err)
		return nil, err
	}

	debit, err := e.posting.BuildSingle(services.SingleParameters{
		Account:         user,
		Side:            entities.EntrySideDebit,
		Amount:          amount,
		Type:            entities.EntryTypeWithdrawal,
		Status:          entities.EntryStatusPending,
		Description:     fmt.Sprintf("withdrawal to %s", address),
		ExternalAddress: address,
	})
	if err != nil {
		e.record("withdrawal", err)
		return nil, err
	}

	var result *dto.WithdrawalResult
	err = e.withLocks(ctx, "withdrawal", []entities.AccountID{user}, func(ctx context.Context) error {
		var pendingBalance entities.Amount
		err := e.inTransaction(ctx, func(uow UnitOfWork) error {
			changes, err := e.applyEntries(ctx, uow, []*entities.LedgerEntry{debit})
			if err != nil {
				return err
			}
			pendingBalance = changes[0].BalanceAfter
			return nil
		})
		if err != nil {
			return err
		}

		gatewayCtx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
		txHash, gatewayErr := e.gateway.SubmitTransfer(gatewayCtx, address, amount)
		timedOut := errors.Is(gatewayCtx.Err(), context.DeadlineExceeded) || errors.Is(gatewayErr, context.DeadlineExceeded)
		cancel()

		if gatewayErr != nil {
			return e.compensateWithdrawal(ctx, debit, gatewayErr, timedOut)
		}

		e.completeWithdrawal(ctx, debit, txHash)
		result = &dto.WithdrawalResult{
			EntryID:    debit.ID,
			GroupID:    debit.GroupID,
			AccountID:  user,
			ToAddress:  address,
			Amount:     amount,
			TxHash:     txHash,
			NewBalance: pendingBalance,
		}
		return nil
	})
	e.record("withdrawal", err)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"accountId": user,
		"amount":    amount.String(),
		"toAddress": address,
		"txHash":    result.TxHash,
	}).Info("Withdrawal sent")
	return result, nil
}

// completeWithdrawal settles the pending debit. The funds already left the
// treasury, so a failure here is only logged and alerted; the balance is right.
func (e *LedgerEngine) completeWithdrawal(ctx context.Context, debit *entities.LedgerEntry, txHash string) {
	ctx = context.WithoutCancel(ctx)
	err := e.inTransaction(ctx, func(uow UnitOfWork) error {
		return uow.LedgerEntryRepository().Settle(ctx, debit.ID, entities.EntryStatusCompleted, &txHash)
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"entryId": debit.ID,
			"txHash":  txHash,
		}).Error("Withdrawal sent but entry could not be completed")
		e.alert(ctx, "Withdrawal entry left pending",
			fmt.Sprintf("Entry %d was sent on chain as %s but could not be marked completed: %v", debit.ID, txHash, err))
	}
}

// compensateWithdrawal reverses a pending debit after the gateway did not confirm the transfer
func (e *LedgerEngine) compensateWithdrawal(ctx context.Context, debit *entities.LedgerEntry, cause error, outcomeUnknown bool) error {
	ctx = context.WithoutCancel(ctx)
	address := ""
	if debit.ExternalAddress != nil {
		address = *debit.ExternalAddress
	}

	credit, err := e.posting.BuildSingle(services.SingleParameters{
		Account:         debit.AccountID,
		Side:            entities.EntrySideCredit,
		Amount:          debit.Amount,
		Type:            entities.EntryTypeWithdrawal,
		Description:     fmt.Sprintf("compensation for failed withdrawal entry %d", debit.ID),
		ExternalAddress: address,
	})
	if err != nil {
		return err
	}
	credit.GroupID = debit.GroupID

	failure := &entities.GatewayFailure{
		AccountID:      debit.AccountID,
		EntryGroupID:   debit.GroupID,
		ToAddress:      address,
		Amount:         debit.Amount,
		Error:          cause.Error(),
		OutcomeUnknown: outcomeUnknown,
	}

	err = e.inTransaction(ctx, func(uow UnitOfWork) error {
		if err := uow.LedgerEntryRepository().Settle(ctx, debit.ID, entities.EntryStatusFailed, nil); err != nil {
			return fmt.Errorf("failed to mark withdrawal failed: %w", err)
		}
		if _, err := e.applyEntries(ctx, uow, []*entities.LedgerEntry{credit}); err != nil {
			return fmt.Errorf("failed to apply compensating credit: %w", err)
		}
		if err := uow.GatewayFailureRepository().Create(ctx, failure); err != nil {
			return fmt.Errorf("failed to record gateway failure: %w", err)
		}
		return uow.EventBus().Publish(events.WithdrawalFailedEvent{
			FailureID:      failure.ID,
			AccountID:      int64(debit.AccountID),
			ToAddress:      address,
			Amount:         int64(debit.Amount),
			OutcomeUnknown: outcomeUnknown,
			Error:          cause.Error(),
		})
	})

	e.metrics.RecordGatewayFailure(outcomeUnknown)
	fields := log.Fields{
		"accountId":      debit.AccountID,
		"entryId":        debit.ID,
		"amount":         debit.Amount.String(),
		"toAddress":      address,
		"outcomeUnknown": outcomeUnknown,
	}

	if err != nil {
		log.WithError(err).WithFields(fields).Error("Withdrawal compensation failed, ledger holds an unconfirmed debit")
		e.alert(ctx, "Withdrawal compensation failed",
			fmt.Sprintf("Entry %d for %s (%s to %s) is pending with no compensation: gateway error %v, compensation error %v",
				debit.ID, e.cfg.Accounts.Name(debit.AccountID), debit.Amount, address, cause, err))
		return fmt.Errorf("%w: %v (compensation failed: %v)", domain.ErrGatewayFailure, cause, err)
	}

	log.WithError(cause).WithFields(fields).Warn("Withdrawal failed, debit compensated")
	title := "Withdrawal failed"
	if outcomeUnknown {
		title = "Withdrawal outcome unknown"
	}
	e.alert(ctx, title,
		fmt.Sprintf("Gateway failure #%d: %s to %s for %s. Balance restored, investigate before resubmitting. Error: %v",
			failure.ID, debit.Amount, address, e.cfg.Accounts.Name(debit.AccountID), cause))

	return fmt.Errorf("%w: %v", domain.ErrGatewayFailure, cause)
}
