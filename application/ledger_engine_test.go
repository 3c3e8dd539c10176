package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ledgerbot/application"
	"ledgerbot/domain"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerEngine_Transfer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		from        entities.AccountID
		to          entities.AccountID
		amount      entities.Amount
		wantErr     error
		wantFrom    entities.Amount
		wantTo      entities.Amount
		wantOutcome string
	}{
		{
			name:        "moves value between users",
			from:        userA,
			to:          userB,
			amount:      tokens(40),
			wantFrom:    tokens(60),
			wantTo:      tokens(40),
			wantOutcome: "transfer/success",
		},
		{
			name:        "full balance may be moved",
			from:        userA,
			to:          userB,
			amount:      tokens(100),
			wantFrom:    0,
			wantTo:      tokens(100),
			wantOutcome: "transfer/success",
		},
		{
			name:        "insufficient balance",
			from:        userA,
			to:          userB,
			amount:      tokens(101),
			wantErr:     domain.ErrInsufficientBalance,
			wantFrom:    tokens(100),
			wantOutcome: "transfer/rejected",
		},
		{
			name:        "same account",
			from:        userA,
			to:          userA,
			amount:      tokens(1),
			wantErr:     domain.ErrSameAccount,
			wantFrom:    tokens(100),
			wantTo:      tokens(100),
			wantOutcome: "transfer/rejected",
		},
		{
			name:        "zero amount",
			from:        userA,
			to:          userB,
			amount:      0,
			wantErr:     domain.ErrInvalidAmount,
			wantFrom:    tokens(100),
			wantOutcome: "transfer/rejected",
		},
		{
			name:        "unknown sender",
			from:        userC,
			to:          userA,
			amount:      tokens(1),
			wantErr:     domain.ErrAccountUnresolved,
			wantTo:      tokens(100),
			wantOutcome: "transfer/rejected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			h := newLedgerHarness(t)
			h.fund(t, userA, tokens(100), "0xfund")

			result, err := h.engine.Transfer(ctx, tt.from, tt.to, tt.amount, "test")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, result)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantFrom, result.FromBalance)
				assert.Equal(t, tt.wantTo, result.ToBalance)
			}

			assert.Equal(t, tt.wantFrom, h.balance(t, tt.from))
			assert.Equal(t, tt.wantTo, h.balance(t, tt.to))
			assert.Equal(t, 1, h.metrics.operation(tt.wantOutcome))
			h.requireConsistent(t)
		})
	}
}

func TestLedgerEngine_TransferPublishesAfterCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newLedgerHarness(t)
	h.fund(t, userA, tokens(10), "0xfund")

	result, err := h.engine.Transfer(ctx, userA, userB, tokens(4), "lunch")
	require.NoError(t, err)

	changes := h.publisher.OfType(events.EventTypeBalanceChange)
	require.Len(t, changes, 3, "one for the deposit and two for the transfer")

	debit := changes[1].(events.BalanceChangeEvent)
	credit := changes[2].(events.BalanceChangeEvent)
	assert.Equal(t, int64(userA), debit.AccountID)
	assert.Equal(t, int64(-tokens(4)), debit.ChangeAmount)
	assert.Equal(t, int64(userB), credit.AccountID)
	assert.Equal(t, result.GroupID.String(), debit.GroupID)
	assert.Equal(t, debit.GroupID, credit.GroupID)

	_, err = h.engine.Transfer(ctx, userA, userB, tokens(100), "too much")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Len(t, h.publisher.OfType(events.EventTypeBalanceChange), 3, "rejected operations publish nothing")
}

func TestLedgerEngine_ConservationAcrossOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newLedgerHarness(t)

	h.fund(t, userA, tokens(100), "0x01")
	h.fund(t, userB, tokens(50), "0x02")

	_, err := h.engine.Transfer(ctx, userA, userB, tokens(30), "")
	require.NoError(t, err)
	_, err = h.engine.ProcessFine(ctx, userB, tokens(20), "spam", "")
	require.NoError(t, err)
	_, err = h.engine.CreateGiveawayEscrow(ctx, 1, userA, tokens(25), "weekly")
	require.NoError(t, err)
	_, err = h.engine.ClaimGiveaway(ctx, 1, userC, tokens(5))
	require.NoError(t, err)
	_, err = h.engine.CancelGiveaway(ctx, 1, userA)
	require.NoError(t, err)

	// Only deposits changed the internal total
	var total entities.Amount
	for _, id := range []entities.AccountID{userA, userB, userC, h.accounts.FineRevenue, h.accounts.Escrow(1), h.accounts.Reserve} {
		total += h.balance(t, id)
	}
	assert.Equal(t, tokens(150), total)
	h.requireConsistent(t)
}

func TestLedgerEngine_ConcurrentOverdraft(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		wait time.Duration
	}{
		{name: "waiting for locks", wait: 2 * time.Second},
		{name: "rejecting busy locks", wait: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			h := newLedgerHarness(t, func(cfg *application.LedgerConfig) {
				cfg.LockAcquireWait = tt.wait
			})
			h.fund(t, userA, tokens(100), "0xfund")

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i, to := range []entities.AccountID{userB, userC} {
				wg.Add(1)
				go func(i int, to entities.AccountID) {
					defer wg.Done()
					_, errs[i] = h.engine.Transfer(ctx, userA, to, tokens(60), "race")
				}(i, to)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				if tt.wait > 0 {
					assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
				} else {
					assert.True(t, errors.Is(err, domain.ErrInsufficientBalance) || errors.Is(err, domain.ErrLockBusy), err.Error())
				}
			}

			assert.Equal(t, 1, succeeded)
			assert.Equal(t, tokens(40), h.balance(t, userA))
			assert.Equal(t, tokens(60), h.balance(t, userB)+h.balance(t, userC))
			assert.Equal(t, 0, h.locks.Held(), "every lock is released")
			h.requireConsistent(t)
		})
	}
}

func TestLedgerEngine_CrashedHolderIsSweptAway(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newLedgerHarness(t, func(cfg *application.LedgerConfig) {
		cfg.LockTTL = time.Minute
	})
	clock := newFixedClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	h.locks.SetClock(clock.Now)
	h.fund(t, userA, tokens(10), "0xfund")

	_, err := h.locks.Acquire(ctx, userA.LockKey(), "crashed-node", time.Minute)
	require.NoError(t, err)

	_, err = h.engine.Transfer(ctx, userA, userB, tokens(1), "")
	require.ErrorIs(t, err, domain.ErrLockBusy)
	assert.Equal(t, 1, h.metrics.lockRejected("transfer"))

	sweeper := application.NewLockSweepWorker(h.locks, time.Minute)
	assert.Equal(t, 0, sweeper.Sweep(ctx), "live lease is kept")

	clock.Advance(time.Minute + time.Second)
	assert.Equal(t, 1, sweeper.Sweep(ctx))

	_, err = h.engine.Transfer(ctx, userA, userB, tokens(1), "")
	require.NoError(t, err)
	assert.Equal(t, tokens(9), h.balance(t, userA))
}

func TestLedgerEngine_CancelledContextStillReleasesLocks(t *testing.T) {
	t.Parallel()
	h := newLedgerHarness(t)
	h.fund(t, userA, tokens(10), "0xfund")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _ = h.engine.Transfer(ctx, userA, userB, tokens(1), "")
	assert.Equal(t, 0, h.locks.Held())
}

func TestLedgerEngine_History(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newLedgerHarness(t)
	h.fund(t, userA, tokens(10), "0xfund")

	_, err := h.engine.Transfer(ctx, userA, userB, tokens(3), "first")
	require.NoError(t, err)
	_, err = h.engine.Transfer(ctx, userA, userB, tokens(2), "second")
	require.NoError(t, err)

	history, err := h.engine.History(ctx, userA, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].Description)
	assert.Equal(t, entities.EntrySideDebit, history[0].Side)
	assert.Equal(t, "first", history[1].Description)

	exists, err := h.engine.AccountExists(ctx, userB)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = h.engine.AccountExists(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, exists)
}
