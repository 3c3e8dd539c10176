package application

import (
	"context"
	"fmt"
	"sort"

	"ledgerbot/domain"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/events"

	log "github.com/sirupsen/logrus"
)

// ReconcileBalances compares the sum of every account except the treasury with
// the treasury's on-chain balance. It never mutates balances; a mismatch is
// logged, published and alerted, and correcting it takes an explicit reserve
// adjustment.
func (e *LedgerEngine) ReconcileBalances(ctx context.Context) (*entities.ReconciliationReport, error) {
	gatewayCtx, cancel := context.WithTimeout(ctx, e.cfg.GatewayTimeout)
	onChain, err := e.gateway.GetTreasuryBalance(gatewayCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read treasury balance: %v", domain.ErrGatewayFailure, err)
	}

	report := &entities.ReconciliationReport{
		OnChainTotal: onChain,
		Tolerance:    e.cfg.ReconcileTolerance,
		CheckedAt:    e.now().UTC(),
	}

	err = e.inTransaction(ctx, func(uow UnitOfWork) error {
		internal, err := uow.AccountRepository().SumBalances(ctx, []entities.AccountID{e.cfg.Accounts.Treasury})
		if err != nil {
			return fmt.Errorf("failed to sum balances: %w", err)
		}

		report.InternalTotal = internal
		report.Difference = internal - onChain
		report.Matched = report.Difference.Abs() <= report.Tolerance

		if report.Matched {
			return nil
		}
		return uow.EventBus().Publish(events.ReconciliationMismatchEvent{
			InternalTotal: int64(report.InternalTotal),
			OnChainTotal:  int64(report.OnChainTotal),
			Difference:    int64(report.Difference),
			Direction:     report.Direction(),
		})
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RecordReconciliation(int64(report.Difference), report.Matched)

	fields := log.Fields{
		"internalTotal": report.InternalTotal.String(),
		"onChainTotal":  report.OnChainTotal.String(),
		"difference":    report.Difference.String(),
		"direction":     report.Direction(),
	}
	if report.Matched {
		log.WithFields(fields).Info("Reconciliation matched")
		return report, nil
	}

	log.WithFields(fields).Warn("Reconciliation mismatch")
	e.alert(ctx, "Reconciliation mismatch",
		fmt.Sprintf("Internal total %s vs on-chain %s: difference %s (%s). Correct with a reserve adjustment after investigating.",
			report.InternalTotal, report.OnChainTotal, report.Difference, report.Direction()))
	return report, nil
}

// AuditBalances folds every ledger entry per account and reports accounts whose
// cached balance disagrees with the fold. Every entry was applied to its
// account when it was written, so failed withdrawal debits count alongside
// their compensating credits.
func (e *LedgerEngine) AuditBalances(ctx context.Context) ([]entities.BalanceMismatch, error) {
	var mismatches []entities.BalanceMismatch
	err := e.inTransaction(ctx, func(uow UnitOfWork) error {
		folded, err := uow.LedgerEntryRepository().FoldBalances(ctx)
		if err != nil {
			return fmt.Errorf("failed to fold entries: %w", err)
		}
		accounts, err := uow.AccountRepository().GetAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}

		seen := make(map[entities.AccountID]bool, len(accounts))
		for _, acct := range accounts {
			seen[acct.ID] = true
			if replayed := folded[acct.ID]; replayed != acct.Balance {
				mismatches = append(mismatches, entities.BalanceMismatch{AccountID: acct.ID, Cached: acct.Balance, Replayed: replayed})
			}
		}
		for id, replayed := range folded {
			if !seen[id] && replayed != 0 {
				mismatches = append(mismatches, entities.BalanceMismatch{AccountID: id, Replayed: replayed})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(mismatches, func(i, j int) bool { return mismatches[i].AccountID < mismatches[j].AccountID })
	if len(mismatches) > 0 {
		log.WithField("mismatches", len(mismatches)).Warn("Cached balances disagree with ledger entries")
	}
	return mismatches, nil
}
