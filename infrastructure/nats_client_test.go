package infrastructure

import (
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

type fakeDelivery struct {
	delivered uint64
	acked     bool
	termed    bool
	nakDelay  time.Duration
	nakked    bool
}

func (f *fakeDelivery) Ack(...nats.AckOpt) error {
	f.acked = true
	return nil
}

func (f *fakeDelivery) NakWithDelay(delay time.Duration, _ ...nats.AckOpt) error {
	f.nakked = true
	f.nakDelay = delay
	return nil
}

func (f *fakeDelivery) Term(...nats.AckOpt) error {
	f.termed = true
	return nil
}

func (f *fakeDelivery) Metadata() (*nats.MsgMetadata, error) {
	return &nats.MsgMetadata{NumDelivered: f.delivered}, nil
}

func TestNATSClient_Deliver(t *testing.T) {
	t.Parallel()

	handlerErr := errors.New("lock busy")

	tests := []struct {
		name          string
		delivered     uint64
		handlerErr    error
		wantAck       bool
		wantNakDelay  time.Duration
		wantTerm      bool
		wantExhausted bool
	}{
		{name: "success acks", delivered: 1, wantAck: true},
		{name: "first failure naks with base delay", delivered: 1, handlerErr: handlerErr, wantNakDelay: 5 * time.Second},
		{name: "second failure backs off", delivered: 2, handlerErr: handlerErr, wantNakDelay: 10 * time.Second},
		{name: "last delivery terminates", delivered: 3, handlerErr: handlerErr, wantTerm: true, wantExhausted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := NewNATSClient("nats://unused")
			var exhausted []string
			client.OnExhausted(func(subject string, data []byte, err error) {
				exhausted = append(exhausted, subject+":"+string(data))
				assert.ErrorIs(t, err, handlerErr)
			})

			msg := &fakeDelivery{delivered: tt.delivered}
			client.deliver("chain.deposits.verified", msg, []byte("payload"), func([]byte) error {
				return tt.handlerErr
			})

			assert.Equal(t, tt.wantAck, msg.acked)
			assert.Equal(t, tt.wantTerm, msg.termed)
			assert.Equal(t, tt.wantNakDelay != 0, msg.nakked)
			assert.Equal(t, tt.wantNakDelay, msg.nakDelay)
			if tt.wantExhausted {
				assert.Equal(t, []string{"chain.deposits.verified:payload"}, exhausted)
			} else {
				assert.Empty(t, exhausted)
			}
		})
	}
}

func TestNATSClient_ConsumerName(t *testing.T) {
	t.Parallel()

	client := NewNATSClient("nats://unused")
	assert.Equal(t, "ledgerbot-chain_deposits_verified", client.consumerName("chain.deposits.verified"))
	assert.Equal(t, "ledgerbot-ledger_all", client.consumerName("ledger.>"))
	assert.Equal(t, "ledgerbot-ledger_any_changed", client.consumerName("ledger.*.changed"))
}

func TestMissingSubjects(t *testing.T) {
	t.Parallel()

	assert.Empty(t, missingSubjects([]string{"a", "b"}, []string{"b"}))
	assert.Equal(t, []string{"c"}, missingSubjects([]string{"a", "b"}, []string{"a", "c"}))
	assert.Equal(t, []string{"a"}, missingSubjects(nil, []string{"a"}))
}

func TestNATSClient_NotConnected(t *testing.T) {
	t.Parallel()

	client := NewNATSClient("nats://unused")
	assert.False(t, client.IsConnected())
	assert.Error(t, client.Subscribe("x", func([]byte) error { return nil }))
	assert.Error(t, client.EnsureStream(StreamSpec{Name: "s", Subjects: []string{"x"}}))
	assert.NoError(t, client.Close())
}
