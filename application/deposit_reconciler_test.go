package application_test

import (
	"context"
	"errors"
	"testing"

	"ledgerbot/application"
	"ledgerbot/domain"
	"ledgerbot/domain/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDepositReconciler_HandleVerifiedTransfer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		memo        string
		wantAccount func(h *ledgerHarness) entities.AccountID
	}{
		{name: "memo names existing user", memo: "555", wantAccount: func(*ledgerHarness) entities.AccountID { return userA }},
		{name: "memo with whitespace", memo: " 555 ", wantAccount: func(*ledgerHarness) entities.AccountID { return userA }},
		{name: "memo names unknown user", memo: "424242", wantAccount: func(h *ledgerHarness) entities.AccountID { return h.accounts.Unclaimed }},
		{name: "memo is not a number", memo: "for alice", wantAccount: func(h *ledgerHarness) entities.AccountID { return h.accounts.Unclaimed }},
		{name: "memo names a system account", memo: "-1", wantAccount: func(h *ledgerHarness) entities.AccountID { return h.accounts.Unclaimed }},
		{name: "empty memo", memo: "", wantAccount: func(h *ledgerHarness) entities.AccountID { return h.accounts.Unclaimed }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			h := newLedgerHarness(t)
			h.fund(t, userA, tokens(1), "0xexisting")

			reconciler := application.NewDepositReconciler(h.engine, h.gateway)
			result, err := reconciler.HandleVerifiedTransfer(ctx, entities.VerifiedTransfer{
				TxHash: "H1",
				Amount: tokens(10),
				Memo:   tt.memo,
			})
			require.NoError(t, err)

			want := tt.wantAccount(h)
			assert.Equal(t, want, result.AccountID)
			assert.Equal(t, want == h.accounts.Unclaimed, result.Unclaimed)
			h.requireConsistent(t)
		})
	}
}

func TestDepositReconciler_ReconcileTxHash(t *testing.T) {
	t.Parallel()

	verified := entities.VerifiedTransfer{TxHash: "0xabc", Amount: tokens(10), Memo: "555", FromAddress: "0xsender"}

	tests := []struct {
		name       string
		result     entities.VerificationResult
		gatewayErr error
		wantErr    error
		wantCredit entities.Amount
	}{
		{name: "verified deposit is credited", result: entities.Verified(verified), wantCredit: tokens(11)},
		{name: "unknown hash", result: entities.NotFound("no such transaction"), wantErr: domain.ErrTransferNotFound, wantCredit: tokens(1)},
		{name: "not a treasury transfer", result: entities.Malformed("wrong recipient"), wantErr: domain.ErrTransferMalformed, wantCredit: tokens(1)},
		{name: "chain unavailable", gatewayErr: errors.New("dial tcp: timeout"), wantErr: domain.ErrGatewayFailure, wantCredit: tokens(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			h := newLedgerHarness(t)
			h.fund(t, userA, tokens(1), "0xexisting")

			h.gateway.On("VerifyIncomingTransfer", mock.Anything, "0xabc").Return(tt.result, tt.gatewayErr).Once()

			reconciler := application.NewDepositReconciler(h.engine, h.gateway)
			_, err := reconciler.ReconcileTxHash(ctx, " 0xabc ")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCredit, h.balance(t, userA))
			h.gateway.AssertExpectations(t)
		})
	}
}

func TestDepositReconciler_ManualResubmissionIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newLedgerHarness(t)
	h.fund(t, userA, tokens(1), "0xexisting")

	transfer := entities.VerifiedTransfer{TxHash: "0xabc", Amount: tokens(10), Memo: "555"}
	h.gateway.On("VerifyIncomingTransfer", mock.Anything, "0xabc").Return(entities.Verified(transfer), nil)

	reconciler := application.NewDepositReconciler(h.engine, h.gateway)

	// Delivered by the stream first, then pasted by the user
	_, err := reconciler.HandleVerifiedTransfer(ctx, transfer)
	require.NoError(t, err)
	result, err := reconciler.ReconcileTxHash(ctx, "0xabc")
	require.NoError(t, err)

	assert.True(t, result.Duplicate)
	assert.Equal(t, tokens(11), h.balance(t, userA))
}

func TestDepositReconciler_StreamAndManualHashCasing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newLedgerHarness(t)
	h.fund(t, userA, tokens(1), "0xexisting")

	// The gateway reports hashes in lowercase, the publisher may not
	verified := entities.VerifiedTransfer{TxHash: "0xabcdef", Amount: tokens(10), Memo: "555"}
	h.gateway.On("VerifyIncomingTransfer", mock.Anything, "0xabcdef").Return(entities.Verified(verified), nil).Once()

	reconciler := application.NewDepositReconciler(h.engine, h.gateway)

	streamed := verified
	streamed.TxHash = "0xABCDEF"
	first, err := reconciler.HandleVerifiedTransfer(ctx, streamed)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := reconciler.ReconcileTxHash(ctx, "ABCDEF")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	assert.Equal(t, tokens(11), h.balance(t, userA))
	h.gateway.AssertExpectations(t)
}

func TestDepositReconciler_EmptyHash(t *testing.T) {
	t.Parallel()
	h := newLedgerHarness(t)

	_, err := application.NewDepositReconciler(h.engine, h.gateway).ReconcileTxHash(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrTransferNotFound)
	h.gateway.AssertNotCalled(t, "VerifyIncomingTransfer", mock.Anything, mock.Anything)
}
