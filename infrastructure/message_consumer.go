package infrastructure

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// MessageHandler defines a function that handles raw message bytes
type MessageHandler func(ctx context.Context, data []byte) error

// MessageConsumer subscribes the ledger to the verified deposit stream and
// routes each subject to its handler
type MessageConsumer struct {
	natsClient *NATSClient
	handlers   map[string]MessageHandler
	mu         sync.RWMutex

	// handlerTimeout bounds one delivery so it settles before the server's ack wait
	handlerTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewMessageConsumer creates a message consumer that routes the deposit subject to listener
func NewMessageConsumer(natsClient *NATSClient, depositSubject string, listener *DepositEventListener) *MessageConsumer {
	ctx, cancel := context.WithCancel(context.Background())

	mc := &MessageConsumer{
		natsClient:     natsClient,
		handlers:       make(map[string]MessageHandler),
		handlerTimeout: 50 * time.Second,
		ctx:            ctx,
		cancel:         cancel,
	}

	mc.RegisterHandler(depositSubject, listener.HandleVerifiedDeposit)
	return mc
}

// RegisterHandler registers a handler for a specific subject pattern
func (mc *MessageConsumer) RegisterHandler(subject string, handler MessageHandler) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.handlers[subject] = handler
	log.WithField("subject", subject).Info("Registered message handler")
}

// Start ensures the deposit stream covers every registered subject, subscribes
// and blocks until Stop is called or ctx is done
func (mc *MessageConsumer) Start(ctx context.Context) error {
	subjects := mc.subjects()
	log.WithField("subjects", subjects).Info("Starting message consumer")

	err := mc.natsClient.EnsureStream(StreamSpec{
		Name:            ChainDepositStream,
		Subjects:        subjects,
		Description:     "Verified on-chain treasury deposits",
		MaxAge:          30 * 24 * time.Hour,
		DuplicateWindow: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure deposit stream: %w", err)
	}

	for _, subject := range subjects {
		if err := mc.subscribe(subject); err != nil {
			return err
		}
	}

	select {
	case <-mc.ctx.Done():
	case <-ctx.Done():
	}
	return nil
}

// Stop gracefully shuts down the consumer
func (mc *MessageConsumer) Stop() {
	log.Info("Stopping message consumer")
	mc.cancel()
}

func (mc *MessageConsumer) subjects() []string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	subjects := make([]string, 0, len(mc.handlers))
	for subject := range mc.handlers {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	return subjects
}

func (mc *MessageConsumer) subscribe(subject string) error {
	return mc.natsClient.Subscribe(subject, func(data []byte) error {
		return mc.dispatch(subject, data)
	})
}

// dispatch runs the subject's handler with a bounded context
func (mc *MessageConsumer) dispatch(subject string, data []byte) error {
	mc.mu.RLock()
	handler, exists := mc.handlers[subject]
	mc.mu.RUnlock()

	if !exists {
		return fmt.Errorf("no handler registered for subject: %s", subject)
	}

	ctx, cancel := context.WithTimeout(mc.ctx, mc.handlerTimeout)
	defer cancel()
	return handler(ctx, data)
}
