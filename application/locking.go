package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerbot/domain"
	"ledgerbot/domain/entities"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// withLocks acquires the locks of accounts in ascending id order, runs fn and
// releases every lock it took, whatever fn returns.
func (e *LedgerEngine) withLocks(ctx context.Context, operation string, accounts []entities.AccountID, fn func(ctx context.Context) error) error {
	keys := e.posting.LockKeys(accounts...)
	holder := fmt.Sprintf("%s/%s", e.cfg.HolderID, operation)

	held := make([]*entities.Lock, 0, len(keys))
	defer func() {
		e.releaseAll(ctx, held)
	}()

	for _, key := range keys {
		lock, err := e.acquire(ctx, key, holder)
		if err != nil {
			if errors.Is(err, domain.ErrLockBusy) {
				e.metrics.RecordLockRejected(operation)
				log.WithFields(log.Fields{
					"operation": operation,
					"lockKey":   key,
				}).Debug("Lock busy, rejecting operation")
			}
			return err
		}
		held = append(held, lock)
	}

	return fn(ctx)
}

// acquire takes one lock, retrying with exponential backoff while it is busy
// for at most LockAcquireWait. A zero wait fails fast with ErrLockBusy.
func (e *LedgerEngine) acquire(ctx context.Context, key, holder string) (*entities.Lock, error) {
	if e.cfg.LockAcquireWait <= 0 {
		return e.locks.Acquire(ctx, key, holder, e.cfg.LockTTL)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = e.cfg.LockAcquireWait

	return backoff.RetryWithData(func() (*entities.Lock, error) {
		lock, err := e.locks.Acquire(ctx, key, holder, e.cfg.LockTTL)
		if err != nil && !errors.Is(err, domain.ErrLockBusy) {
			return nil, backoff.Permanent(err)
		}
		return lock, err
	}, backoff.WithContext(b, ctx))
}

// releaseAll releases held locks in reverse order. Release must happen even
// when the operation's context was cancelled.
func (e *LedgerEngine) releaseAll(ctx context.Context, held []*entities.Lock) {
	releaseCtx := context.WithoutCancel(ctx)
	for i := len(held) - 1; i >= 0; i-- {
		if err := e.locks.Release(releaseCtx, held[i]); err != nil {
			log.WithError(err).WithField("lockKey", held[i].Key).Warn("Failed to release lock, sweep will reclaim it")
		}
	}
}
