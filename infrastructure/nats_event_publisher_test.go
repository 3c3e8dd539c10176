package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"ledgerbot/domain/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedMessage struct {
	subject string
	msgID   string
	data    []byte
}

type fakeMessagePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (f *fakeMessagePublisher) Publish(_ context.Context, subject string, msgID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, publishedMessage{subject: subject, msgID: msgID, data: data})
	return nil
}

func TestNATSEventPublisher_PublishWrapsEnvelope(t *testing.T) {
	t.Parallel()

	client := &fakeMessagePublisher{}
	publisher := NewNATSEventPublisher(client, NewEventSubjectMapper())

	var published []string
	publisher.OnPublished(func(eventType string) { published = append(published, eventType) })

	event := events.DepositCreditedEvent{TxHash: "H1", AccountID: 555, Amount: 10_000_000}
	require.NoError(t, publisher.Publish(event))

	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	assert.Equal(t, SubjectDepositCredited, msg.subject)

	var envelope EventEnvelope
	require.NoError(t, json.Unmarshal(msg.data, &envelope))
	assert.Equal(t, "deposit_credited", envelope.EventType)
	assert.Equal(t, "ledgerbot", envelope.SourceService)
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, envelope.EventID, msg.msgID)

	var payload events.DepositCreditedEvent
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, event, payload)
	assert.Equal(t, []string{"deposit_credited"}, published)
}

func TestNATSEventPublisher_LocalHandlersRunBeforePublish(t *testing.T) {
	t.Parallel()

	client := &fakeMessagePublisher{}
	publisher := NewNATSEventPublisher(client, NewEventSubjectMapper())

	var seen []events.Event
	publisher.RegisterLocalHandler(events.EventTypeReconciliationMismatch, func(_ context.Context, e events.Event) error {
		seen = append(seen, e)
		return errors.New("handler failure does not block publish")
	})

	require.NoError(t, publisher.Publish(events.ReconciliationMismatchEvent{Difference: 5}))
	require.NoError(t, publisher.Publish(events.BalanceChangeEvent{AccountID: 1}))

	assert.Len(t, seen, 1)
	require.Len(t, client.messages, 2)
	assert.Equal(t, SubjectReconciliationMismatch, client.messages[0].subject)
	assert.Equal(t, SubjectBalanceChanged, client.messages[1].subject)
}

func TestNATSEventPublisher_TransportError(t *testing.T) {
	t.Parallel()

	client := &fakeMessagePublisher{err: errors.New("no responders")}
	publisher := NewNATSEventPublisher(client, NewEventSubjectMapper())

	err := publisher.Publish(events.WithdrawalFailedEvent{FailureID: 1})
	assert.ErrorContains(t, err, "no responders")
}

func TestEventSubjectMapper_AllSubjectsMapped(t *testing.T) {
	t.Parallel()

	mapper := NewEventSubjectMapper()
	tests := []struct {
		event   events.Event
		subject string
	}{
		{events.BalanceChangeEvent{}, SubjectBalanceChanged},
		{events.DepositCreditedEvent{}, SubjectDepositCredited},
		{events.WithdrawalFailedEvent{}, SubjectWithdrawalFailed},
		{events.ReconciliationMismatchEvent{}, SubjectReconciliationMismatch},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.subject, mapper.MapEventToSubject(tt.event))
		assert.Contains(t, mapper.GetAllSubjects(), tt.subject)
	}
}
