package application_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ledgerbot/application"
	"ledgerbot/domain"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/events"
	"ledgerbot/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const destination = "0x00000000000000000000000000000000000000aa"

func TestProcessWithdrawal_Success(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newLedgerHarness(t)
	h.fund(t, userA, tokens(50), "0xfund")

	h.gateway.On("SubmitTransfer", mock.Anything, destination, tokens(20)).Return("0xsent", nil).Once()

	result, err := h.engine.ProcessWithdrawal(ctx, userA, destination, tokens(20))
	require.NoError(t, err)
	assert.Equal(t, "0xsent", result.TxHash)
	assert.Equal(t, tokens(30), result.NewBalance)
	assert.Equal(t, tokens(30), h.balance(t, userA))

	history, err := h.engine.History(ctx, userA, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entities.EntryStatusCompleted, history[0].Status)
	require.NotNil(t, history[0].ExternalTxHash)
	assert.Equal(t, "0xsent", *history[0].ExternalTxHash)

	h.gateway.AssertExpectations(t)
	assert.Equal(t, 0, h.locks.Held())
	h.requireConsistent(t)
}

func TestProcessWithdrawal_GatewayTimeoutCompensates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newLedgerHarness(t, func(cfg *application.LedgerConfig) {
		cfg.GatewayTimeout = 50 * time.Millisecond
	})
	h.fund(t, userA, tokens(50), "0xfund")

	h.gateway.On("SubmitTransfer", mock.Anything, destination, tokens(20)).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.DeadlineExceeded).Once()

	_, err := h.engine.ProcessWithdrawal(ctx, userA, destination, tokens(20))
	require.ErrorIs(t, err, domain.ErrGatewayFailure)

	assert.Equal(t, tokens(50), h.balance(t, userA))

	failures, err := h.engine.GatewayFailures(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.True(t, failures[0].OutcomeUnknown)
	assert.Equal(t, userA, failures[0].AccountID)
	assert.Equal(t, tokens(20), failures[0].Amount)
	assert.Equal(t, destination, failures[0].ToAddress)

	failed := h.publisher.OfType(events.EventTypeWithdrawalFailed)
	require.Len(t, failed, 1)
	assert.True(t, failed[0].(events.WithdrawalFailedEvent).OutcomeUnknown)

	alerts := h.alerter.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "Withdrawal outcome unknown", alerts[0].Title)

	history, err := h.engine.History(ctx, userA, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entities.EntrySideCredit, history[0].Side, "compensating credit")
	assert.Equal(t, entities.EntryStatusFailed, history[1].Status, "original debit is marked failed")
	assert.Equal(t, history[0].GroupID, history[1].GroupID)

	assert.Equal(t, 0, h.locks.Held())
	h.requireConsistent(t)
}

func TestProcessWithdrawal_GatewayErrorCompensates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newLedgerHarness(t)
	h.fund(t, userA, tokens(50), "0xfund")

	h.gateway.On("SubmitTransfer", mock.Anything, destination, tokens(20)).
		Return("", errors.New("insufficient funds for gas")).Once()

	_, err := h.engine.ProcessWithdrawal(ctx, userA, destination, tokens(20))
	require.ErrorIs(t, err, domain.ErrGatewayFailure)
	assert.ErrorContains(t, err, "insufficient funds for gas")
	assert.Equal(t, tokens(50), h.balance(t, userA))

	failures, err := h.engine.GatewayFailures(ctx, false, 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.False(t, failures[0].OutcomeUnknown)
	assert.Equal(t, "Withdrawal failed", h.alerter.Alerts()[0].Title)
	assert.Equal(t, 1, h.metrics.operation("withdrawal/error"))
}

func TestProcessWithdrawal_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		user    entities.AccountID
		address string
		amount  entities.Amount
		wantErr error
	}{
		{name: "insufficient balance", user: userA, address: destination, amount: tokens(51), wantErr: domain.ErrInsufficientBalance},
		{name: "empty address", user: userA, address: "  ", amount: tokens(1), wantErr: domain.ErrInvalidAddress},
		{name: "zero amount", user: userA, address: destination, amount: 0, wantErr: domain.ErrInvalidAmount},
		{name: "system account", user: -2, address: destination, amount: tokens(1), wantErr: domain.ErrAccountUnresolved},
		{name: "unknown user", user: userC, address: destination, amount: tokens(1), wantErr: domain.ErrAccountUnresolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newLedgerHarness(t)
			h.fund(t, userA, tokens(50), "0xfund")

			_, err := h.engine.ProcessWithdrawal(context.Background(), tt.user, tt.address, tt.amount)
			require.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, tokens(50), h.balance(t, userA))
			h.gateway.AssertNotCalled(t, "SubmitTransfer", mock.Anything, mock.Anything, mock.Anything)
			failures, err := h.engine.GatewayFailures(context.Background(), false, 0)
			require.NoError(t, err)
			assert.Empty(t, failures)
		})
	}
}

// validatingGateway adds address validation to the mock gateway
type validatingGateway struct {
	*testhelpers.MockChainGateway
}

func (g validatingGateway) ValidateAddress(address string) error {
	if address != destination {
		return fmt.Errorf("%w: %s", domain.ErrInvalidAddress, address)
	}
	return nil
}

func TestProcessWithdrawal_ValidatesAddressBeforeDebit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := application.DefaultLedgerConfig()
	h := newLedgerHarness(t)
	gateway := validatingGateway{MockChainGateway: &testhelpers.MockChainGateway{}}
	engine := application.NewLedgerEngine(
		h.engineFactory(),
		h.locks,
		gateway,
		h.alerter,
		cfg,
	)

	_, err := engine.ProcessDeposit(ctx, depositOf(userA, tokens(50), "0xfund"))
	require.NoError(t, err)

	_, err = engine.ProcessWithdrawal(ctx, userA, "not-an-address", tokens(10))
	require.ErrorIs(t, err, domain.ErrInvalidAddress)
	gateway.AssertNotCalled(t, "SubmitTransfer", mock.Anything, mock.Anything, mock.Anything)

	gateway.On("SubmitTransfer", mock.Anything, destination, tokens(10)).Return("0xok", nil).Once()
	_, err = engine.ProcessWithdrawal(ctx, userA, destination, tokens(10))
	require.NoError(t, err)

	balance, err := engine.GetBalance(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, tokens(40), balance)
}

// centTokenGateway is a mock gateway for a token with two decimals
type centTokenGateway struct {
	*testhelpers.MockChainGateway
}

func (g centTokenGateway) ValidateAmount(amount entities.Amount) error {
	if int64(amount)%10_000 != 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidAmount, amount)
	}
	return nil
}

func TestProcessWithdrawal_RejectsAmountTokenCannotCarry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newLedgerHarness(t)
	gateway := centTokenGateway{MockChainGateway: &testhelpers.MockChainGateway{}}
	engine := application.NewLedgerEngine(
		h.engineFactory(),
		h.locks,
		gateway,
		h.alerter,
		application.DefaultLedgerConfig(),
	)

	_, err := engine.ProcessDeposit(ctx, depositOf(userA, tokens(50), "0xfund"))
	require.NoError(t, err)

	_, err = engine.ProcessWithdrawal(ctx, userA, destination, entities.MustParseAmount("1.005"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	gateway.AssertNotCalled(t, "SubmitTransfer", mock.Anything, mock.Anything, mock.Anything)

	balance, err := engine.GetBalance(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, tokens(50), balance)
}

func TestResolveGatewayFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newLedgerHarness(t)
	h.fund(t, userA, tokens(50), "0xfund")

	h.gateway.On("SubmitTransfer", mock.Anything, destination, tokens(5)).Return("", errors.New("rpc down")).Once()
	_, err := h.engine.ProcessWithdrawal(ctx, userA, destination, tokens(5))
	require.ErrorIs(t, err, domain.ErrGatewayFailure)

	failures, err := h.engine.GatewayFailures(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, failures, 1)

	_, err = h.engine.ResolveGatewayFailure(ctx, failures[0].ID, " ")
	require.Error(t, err)

	resolved, err := h.engine.ResolveGatewayFailure(ctx, failures[0].ID, "rpc outage, user resubmitted")
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved())
	require.NotNil(t, resolved.ResolutionNote)
	assert.Equal(t, "rpc outage, user resubmitted", *resolved.ResolutionNote)

	open, err := h.engine.GatewayFailures(ctx, true, 0)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = h.engine.ResolveGatewayFailure(ctx, 999, "missing")
	assert.ErrorIs(t, err, domain.ErrFailureNotFound)
	assert.Equal(t, tokens(50), h.balance(t, userA), "resolution never moves balances")
}
