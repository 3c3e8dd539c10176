package application

import (
	"context"
	"time"

	"ledgerbot/domain/entities"

	log "github.com/sirupsen/logrus"
)

// BalanceReconciler is the read-only check run by the reconciliation worker
type BalanceReconciler interface {
	ReconcileBalances(ctx context.Context) (*entities.ReconciliationReport, error)
}

// ReconciliationWorker compares the ledger to the treasury on a fixed interval
type ReconciliationWorker struct {
	reconciler BalanceReconciler
	interval   time.Duration
}

// NewReconciliationWorker creates a new reconciliation worker
func NewReconciliationWorker(reconciler BalanceReconciler, interval time.Duration) *ReconciliationWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReconciliationWorker{
		reconciler: reconciler,
		interval:   interval,
	}
}

// Start runs one check immediately and then on every tick
func (w *ReconciliationWorker) Start(ctx context.Context) func() {
	ticker := time.NewTicker(w.interval)
	stopChan := make(chan struct{})

	go func() {
		log.WithField("interval", w.interval).Info("Reconciliation worker started")
		defer ticker.Stop()

		w.run(ctx)

		for {
			select {
			case <-ctx.Done():
				log.Info("Reconciliation worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Reconciliation worker shutting down (stop requested)...")
				return
			case <-ticker.C:
				w.run(ctx)
			}
		}
	}()

	return func() {
		close(stopChan)
	}
}

func (w *ReconciliationWorker) run(ctx context.Context) {
	if _, err := w.reconciler.ReconcileBalances(ctx); err != nil {
		log.WithError(err).Error("Reconciliation run failed")
	}
}
