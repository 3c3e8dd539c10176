package application

import (
	"context"
	"time"

	"ledgerbot/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// LockSweepWorker periodically deletes expired lock leases. It is what frees
// accounts whose holder crashed without releasing.
type LockSweepWorker struct {
	locks    interfaces.LockManager
	interval time.Duration
}

// NewLockSweepWorker creates a new lock sweep worker
func NewLockSweepWorker(locks interfaces.LockManager, interval time.Duration) *LockSweepWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &LockSweepWorker{
		locks:    locks,
		interval: interval,
	}
}

// Start runs the sweep on a ticker until ctx is done or the returned cleanup is called
func (w *LockSweepWorker) Start(ctx context.Context) func() {
	ticker := time.NewTicker(w.interval)
	stopChan := make(chan struct{})

	go func() {
		log.WithField("interval", w.interval).Info("Lock sweep worker started")
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("Lock sweep worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Lock sweep worker shutting down (stop requested)...")
				return
			case <-ticker.C:
				w.Sweep(ctx)
			}
		}
	}()

	return func() {
		close(stopChan)
	}
}

// Sweep runs one pass and returns how many leases were reclaimed
func (w *LockSweepWorker) Sweep(ctx context.Context) int {
	swept, err := w.locks.SweepExpired(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to sweep expired locks")
		return 0
	}
	if swept > 0 {
		log.WithField("count", swept).Warn("Reclaimed expired locks")
	}
	return swept
}
