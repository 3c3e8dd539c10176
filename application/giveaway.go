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

// CreateGiveawayEscrow moves total from the funder into the giveaway's escrow account
func (e *LedgerEngine) CreateGiveawayEscrow(ctx context.Context, giveawayID int64, funder entities.AccountID, total entities.Amount, note string) (*dto.GiveawayResult, error) {
	if !e.cfg.Accounts.HasEscrow(giveawayID) {
		return nil, fmt.Errorf("%w: giveaway id %d", domain.ErrInvalidGiveaway, giveawayID)
	}
	escrow := e.cfg.Accounts.Escrow(giveawayID)

	entries, err := e.posting.BuildTransfer(services.TransferParameters{
		From:        funder,
		To:          escrow,
		Amount:      total,
		Type:        entities.EntryTypeGiveaway,
		Description: fmt.Sprintf("fund giveaway %d: %s", giveawayID, note),
	})
	if err != nil {
		e.record("giveaway_create", err)
		return nil, err
	}

	var result *dto.GiveawayResult
	err = e.withLocks(ctx, "giveaway_create", []entities.AccountID{funder, escrow}, func(ctx context.Context) error {
		return e.inTransaction(ctx, func(uow UnitOfWork) error {
			existing, err := uow.AccountRepository().GetForUpdate(ctx, escrow)
			if err != nil {
				return err
			}
			if existing != nil && existing.Balance != 0 {
				return fmt.Errorf("%w: giveaway %d escrow already holds %s", domain.ErrInvalidGiveaway, giveawayID, existing.Balance)
			}

			changes, err := e.applyEntries(ctx, uow, entries)
			if err != nil {
				return err
			}
			result = &dto.GiveawayResult{
				GiveawayID:     giveawayID,
				GroupID:        entries[0].GroupID,
				AccountID:      funder,
				Amount:         total,
				AccountBalance: changes[0].BalanceAfter,
				EscrowBalance:  changes[1].BalanceAfter,
			}
			return nil
		})
	})
	e.record("giveaway_create", err)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"giveawayId": giveawayID,
		"funder":     funder,
		"amount":     total.String(),
	}).Info("Giveaway escrow funded")
	return result, nil
}

// ClaimGiveaway pays amount from the giveaway's escrow to a claimant
func (e *LedgerEngine) ClaimGiveaway(ctx context.Context, giveawayID int64, claimant entities.AccountID, amount entities.Amount) (*dto.GiveawayResult, error) {
	if !e.cfg.Accounts.HasEscrow(giveawayID) {
		return nil, fmt.Errorf("%w: giveaway id %d", domain.ErrInvalidGiveaway, giveawayID)
	}
	if !claimant.IsUser() {
		return nil, fmt.Errorf("claimant %d: %w", claimant, domain.ErrAccountUnresolved)
	}
	escrow := e.cfg.Accounts.Escrow(giveawayID)

	entries, err := e.posting.BuildTransfer(services.TransferParameters{
		From:        escrow,
		To:          claimant,
		Amount:      amount,
		Type:        entities.EntryTypeGiveaway,
		Description: fmt.Sprintf("claim giveaway %d", giveawayID),
	})
	if err != nil {
		e.record("giveaway_claim", err)
		return nil, err
	}

	var result *dto.GiveawayResult
	err = e.withLocks(ctx, "giveaway_claim", []entities.AccountID{escrow, claimant}, func(ctx context.Context) error {
		return e.inTransaction(ctx, func(uow UnitOfWork) error {
			changes, err := e.applyEntries(ctx, uow, entries)
			if err != nil {
				return err
			}
			result = &dto.GiveawayResult{
				GiveawayID:     giveawayID,
				GroupID:        entries[0].GroupID,
				AccountID:      claimant,
				Amount:         amount,
				EscrowBalance:  changes[0].BalanceAfter,
				AccountBalance: changes[1].BalanceAfter,
			}
			return nil
		})
	})
	e.record("giveaway_claim", err)
	return result, err
}

// CancelGiveaway refunds whatever remains in escrow to the funder.
// An exhausted escrow yields a zero refund and no entries.
func (e *LedgerEngine) CancelGiveaway(ctx context.Context, giveawayID int64, funder entities.AccountID) (*dto.GiveawayResult, error) {
	if !e.cfg.Accounts.HasEscrow(giveawayID) {
		return nil, fmt.Errorf("%w: giveaway id %d", domain.ErrInvalidGiveaway, giveawayID)
	}
	escrow := e.cfg.Accounts.Escrow(giveawayID)

	var result *dto.GiveawayResult
	err := e.withLocks(ctx, "giveaway_cancel", []entities.AccountID{escrow, funder}, func(ctx context.Context) error {
		return e.inTransaction(ctx, func(uow UnitOfWork) error {
			acct, err := uow.AccountRepository().GetForUpdate(ctx, escrow)
			if err != nil {
				return err
			}
			if acct == nil {
				return fmt.Errorf("%w: giveaway %d has no escrow", domain.ErrInvalidGiveaway, giveawayID)
			}

			result = &dto.GiveawayResult{GiveawayID: giveawayID, AccountID: funder}
			if acct.Balance == 0 {
				return nil
			}

			entries, err := e.posting.BuildTransfer(services.TransferParameters{
				From:        escrow,
				To:          funder,
				Amount:      acct.Balance,
				Type:        entities.EntryTypeGiveaway,
				Description: fmt.Sprintf("refund cancelled giveaway %d", giveawayID),
			})
			if err != nil {
				return err
			}
			changes, err := e.applyEntries(ctx, uow, entries)
			if err != nil {
				return err
			}
			result.GroupID = entries[0].GroupID
			result.Amount = acct.Balance
			result.EscrowBalance = changes[0].BalanceAfter
			result.AccountBalance = changes[1].BalanceAfter
			return nil
		})
	})
	e.record("giveaway_cancel", err)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"giveawayId": giveawayID,
		"funder":     funder,
		"refunded":   result.Amount.String(),
	}).Info("Giveaway cancelled")
	return result, nil
}
