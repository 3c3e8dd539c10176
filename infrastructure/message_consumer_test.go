package infrastructure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageConsumer_Dispatch(t *testing.T) {
	t.Parallel()

	listener := NewDepositEventListener(&mockTransferHandler{})
	consumer := NewMessageConsumer(NewNATSClient("nats://unused"), "chain.deposits.verified", listener)

	var gotDeadline bool
	consumer.RegisterHandler("chain.deposits.audit", func(ctx context.Context, data []byte) error {
		_, gotDeadline = ctx.Deadline()
		assert.Equal(t, "{}", string(data))
		return nil
	})

	assert.Equal(t, []string{"chain.deposits.audit", "chain.deposits.verified"}, consumer.subjects())

	require.NoError(t, consumer.dispatch("chain.deposits.audit", []byte("{}")))
	assert.True(t, gotDeadline)

	assert.Error(t, consumer.dispatch("chain.unknown", nil))

	assert.Error(t, consumer.Start(context.Background()), "start needs a JetStream connection")
	consumer.Stop()
}
