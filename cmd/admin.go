package cmd

import (
	"context"
	"fmt"
	"strings"

	"ledgerbot/application"
	"ledgerbot/config"
	"ledgerbot/domain/entities"
	"ledgerbot/infrastructure"

	log "github.com/sirupsen/logrus"
)

// withOfflineLedger connects to the database and chain and hands fn an engine
// that does not publish events. Used by the one-shot operator commands.
func withOfflineLedger(ctx context.Context, fn func(engine *application.LedgerEngine) error) error {
	cfg := config.Get()
	ConfigureLogging(cfg)

	db, err := connectDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	locks, closeLocks, err := newLockManager(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeLocks()

	gateway, closeGateway, err := newChainGateway(cfg)
	if err != nil {
		return err
	}
	defer closeGateway()

	engine := newLedgerEngine(cfg, db, locks, gateway, infrastructure.LogAlerter{}, infrastructure.NewNoopEventPublisher())
	return fn(engine)
}

// Reconcile runs one treasury reconciliation and fails if the totals disagree
func Reconcile(ctx context.Context) error {
	return withOfflineLedger(ctx, func(engine *application.LedgerEngine) error {
		report, err := engine.ReconcileBalances(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("internal total: %s\non-chain:       %s\ndifference:     %s\n",
			report.InternalTotal, report.OnChainTotal, report.Difference)
		if err := report.Err(); err != nil {
			return err
		}
		fmt.Println("balanced")
		return nil
	})
}

// AdjustReserve applies a manual correction to the reserve.
// args are the amount, debit or credit, and the reason.
func AdjustReserve(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: ledgerbot adjust-reserve <amount> <debit|credit> <reason...>")
	}

	amount, err := entities.ParseAmount(args[0])
	if err != nil {
		return err
	}
	if err := amount.ValidatePositive(); err != nil {
		return err
	}

	switch args[1] {
	case "credit":
	case "debit":
		amount = -amount
	default:
		return fmt.Errorf("direction must be debit or credit, got %q", args[1])
	}
	reason := strings.Join(args[2:], " ")

	return withOfflineLedger(ctx, func(engine *application.LedgerEngine) error {
		result, err := engine.ProcessAdjustment(ctx, engine.Accounts().Reserve, amount, reason)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"amount":  amount.String(),
			"reason":  reason,
			"balance": result.NewBalance.String(),
		}).Info("Reserve adjusted")
		return nil
	})
}

// ReplayBalances folds the entry log and reports every account whose cached
// balance disagrees with it
func ReplayBalances(ctx context.Context) error {
	return withOfflineLedger(ctx, func(engine *application.LedgerEngine) error {
		mismatches, err := engine.AuditBalances(ctx)
		if err != nil {
			return err
		}
		for _, m := range mismatches {
			fmt.Printf("%s: cached %s, entries %s\n", engine.Accounts().Name(m.AccountID), m.Cached, m.Replayed)
		}
		if len(mismatches) > 0 {
			return fmt.Errorf("%d accounts disagree with the entry log", len(mismatches))
		}
		fmt.Println("all cached balances match the entry log")
		return nil
	})
}
