package infrastructure

import (
	"context"
	"errors"
	"testing"

	"ledgerbot/domain/events"
	"ledgerbot/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionalPublisher_FlushPublishesInOrder(t *testing.T) {
	t.Parallel()

	recorder := &testhelpers.RecordingPublisher{}
	tp := NewTransactionalPublisher(recorder)

	require.NoError(t, tp.Publish(events.BalanceChangeEvent{AccountID: 1, NewBalance: 10}))
	require.NoError(t, tp.Publish(events.DepositCreditedEvent{TxHash: "H1"}))
	assert.Equal(t, 2, tp.Pending())
	assert.Empty(t, recorder.Events(), "nothing is published before flush")

	require.NoError(t, tp.Flush(context.Background()))

	published := recorder.Events()
	require.Len(t, published, 2)
	assert.Equal(t, events.EventTypeBalanceChange, published[0].Type())
	assert.Equal(t, events.EventTypeDepositCredited, published[1].Type())
	assert.Equal(t, 0, tp.Pending())
}

func TestTransactionalPublisher_DiscardDropsEvents(t *testing.T) {
	t.Parallel()

	recorder := &testhelpers.RecordingPublisher{}
	tp := NewTransactionalPublisher(recorder)

	require.NoError(t, tp.Publish(events.BalanceChangeEvent{AccountID: 1}))
	tp.Discard()
	require.NoError(t, tp.Flush(context.Background()))

	assert.Empty(t, recorder.Events())
}

func TestTransactionalPublisher_FlushContinuesAfterPublishError(t *testing.T) {
	t.Parallel()

	failing := events.BalanceChangeEvent{AccountID: 1}
	passing := events.BalanceChangeEvent{AccountID: 2}

	publisher := &testhelpers.MockEventPublisher{}
	publisher.On("Publish", failing).Return(errors.New("broker down")).Once()
	publisher.On("Publish", passing).Return(nil).Once()

	tp := NewTransactionalPublisher(publisher)
	require.NoError(t, tp.Publish(failing))
	require.NoError(t, tp.Publish(passing))

	assert.NoError(t, tp.Flush(context.Background()))
	publisher.AssertExpectations(t)
	publisher.AssertNumberOfCalls(t, "Publish", 2)
}
