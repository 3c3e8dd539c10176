package application_test

import (
	"context"
	"testing"

	"ledgerbot/domain"
	"ledgerbot/domain/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessFineAndBail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newLedgerHarness(t)
	h.fund(t, userA, tokens(50), "0xfund")

	fine, err := h.engine.ProcessFine(ctx, userA, tokens(15), "V-12", "caps lock")
	require.NoError(t, err)
	assert.Equal(t, tokens(35), fine.NewBalance)
	require.NotNil(t, fine.Counterparty)
	assert.Equal(t, h.accounts.FineRevenue, *fine.Counterparty)

	bail, err := h.engine.ProcessBail(ctx, userA, tokens(5), "")
	require.NoError(t, err)
	assert.Equal(t, tokens(30), bail.NewBalance)

	assert.Equal(t, tokens(20), h.balance(t, h.accounts.FineRevenue))

	history, err := h.engine.History(ctx, userA, 2)
	require.NoError(t, err)
	assert.Equal(t, entities.EntryTypeBail, history[0].Type)
	assert.Equal(t, entities.EntryTypeFine, history[1].Type)
	assert.Contains(t, history[1].Description, "V-12")
	h.requireConsistent(t)
}

func TestProcessFine_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		user    entities.AccountID
		amount  entities.Amount
		wantErr error
	}{
		{name: "more than balance", user: userA, amount: tokens(51), wantErr: domain.ErrInsufficientBalance},
		{name: "system account", user: -3, amount: tokens(1), wantErr: domain.ErrAccountUnresolved},
		{name: "zero", user: userA, amount: 0, wantErr: domain.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newLedgerHarness(t)
			h.fund(t, userA, tokens(50), "0xfund")

			_, err := h.engine.ProcessFine(context.Background(), tt.user, tt.amount, "V-1", "")
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tokens(50), h.balance(t, userA))
			assert.Equal(t, entities.Amount(0), h.balance(t, h.accounts.FineRevenue))
		})
	}
}

func TestProcessAdjustment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newLedgerHarness(t)
	h.fund(t, userA, tokens(10), "0xfund")

	credit, err := h.engine.ProcessAdjustment(ctx, userA, tokens(5), "goodwill")
	require.NoError(t, err)
	assert.Equal(t, tokens(15), credit.NewBalance)
	assert.Equal(t, -tokens(5), h.balance(t, h.accounts.Reserve))

	debit, err := h.engine.ProcessAdjustment(ctx, userA, -tokens(3), "clawback")
	require.NoError(t, err)
	assert.Equal(t, tokens(12), debit.NewBalance)
	assert.Equal(t, -tokens(2), h.balance(t, h.accounts.Reserve))

	_, err = h.engine.ProcessAdjustment(ctx, userA, -tokens(100), "too much")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = h.engine.ProcessAdjustment(ctx, userA, 0, "nothing")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	reserve, err := h.engine.ProcessAdjustment(ctx, h.accounts.Reserve, tokens(2), "settle")
	require.NoError(t, err)
	assert.Equal(t, entities.Amount(0), reserve.NewBalance)
	assert.Nil(t, reserve.Counterparty)
	h.requireConsistent(t)
}
