package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Stream names owned by the ledger
const (
	ChainDepositStream = "chain_deposits"
	LedgerEventStream  = "ledger_events"
)

// StreamSpec describes a JetStream stream the ledger reads or writes
type StreamSpec struct {
	Name        string
	Subjects    []string
	Description string
	MaxAge      time.Duration

	// DuplicateWindow is how long the server remembers message ids for dedup
	DuplicateWindow time.Duration
}

// ExhaustedHandler is called when a message fails on its last allowed delivery
type ExhaustedHandler func(subject string, data []byte, err error)

// deliverable is the part of *nats.Msg the delivery loop acknowledges through
type deliverable interface {
	Ack(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
	Metadata() (*nats.MsgMetadata, error)
}

// NATSClient wraps a NATS connection with JetStream.
// Subscriptions are durable with explicit acks so a deposit survives a restart.
type NATSClient struct {
	servers string
	name    string
	nc      *nats.Conn
	js      nats.JetStreamContext
	mu      sync.RWMutex

	reconnectDelay       time.Duration
	maxReconnectAttempts int
	maxDeliver           int
	ackWait              time.Duration
	redeliveryDelay      time.Duration
	onExhausted          ExhaustedHandler
}

// NewNATSClient creates a new NATS client
func NewNATSClient(servers string) *NATSClient {
	return &NATSClient{
		servers:              servers,
		name:                 "ledgerbot",
		reconnectDelay:       2 * time.Second,
		maxReconnectAttempts: -1,
		maxDeliver:           3,
		ackWait:              time.Minute,
		redeliveryDelay:      5 * time.Second,
	}
}

// OnExhausted registers the callback for messages that ran out of deliveries.
// Must be called before Subscribe.
func (c *NATSClient) OnExhausted(fn ExhaustedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExhausted = fn
}

// Connect establishes a connection to the NATS server with JetStream
func (c *NATSClient) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name(c.name),
		nats.MaxReconnects(c.maxReconnectAttempts),
		nats.ReconnectWait(c.reconnectDelay),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
				return
			}
			log.Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("server", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			entry := log.WithError(err)
			if sub != nil {
				entry = entry.WithField("subject", sub.Subject)
			}
			entry.Error("NATS async error")
		}),
	}

	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(c.servers, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c.mu.Lock()
	c.nc = nc
	c.js = js
	c.mu.Unlock()

	log.WithField("servers", c.servers).Info("Connected to NATS with JetStream")
	return nil
}

// consumerName derives a durable consumer name from a subject
func (c *NATSClient) consumerName(subject string) string {
	replacer := strings.NewReplacer(".", "_", "*", "any", ">", "all")
	return c.name + "-" + replacer.Replace(subject)
}

// Subscribe registers a durable handler for subject. A handler error schedules
// a redelivery; on the last allowed delivery the message is terminated and
// handed to the exhausted handler instead.
func (c *NATSClient) Subscribe(subject string, handler func([]byte) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.js == nil {
		return fmt.Errorf("not connected to NATS JetStream")
	}

	_, err := c.js.Subscribe(
		subject,
		func(msg *nats.Msg) {
			c.deliver(subject, msg, msg.Data, handler)
		},
		nats.Durable(c.consumerName(subject)),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.DeliverAll(),
		nats.MaxDeliver(c.maxDeliver),
		nats.AckWait(c.ackWait),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	log.WithField("subject", subject).Info("Subscribed to NATS subject")
	return nil
}

// deliver runs handler for one message and settles it with the server
func (c *NATSClient) deliver(subject string, msg deliverable, data []byte, handler func([]byte) error) {
	err := handler(data)
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			log.WithError(ackErr).WithField("subject", subject).Error("Failed to ACK message")
		}
		return
	}

	delivery := uint64(1)
	if meta, metaErr := msg.Metadata(); metaErr == nil {
		delivery = meta.NumDelivered
	}
	fields := log.Fields{
		"subject":  subject,
		"delivery": delivery,
		"error":    err,
	}

	if c.maxDeliver > 0 && delivery >= uint64(c.maxDeliver) {
		log.WithFields(fields).Error("Message failed on its last delivery, giving up")
		if termErr := msg.Term(); termErr != nil {
			log.WithError(termErr).WithField("subject", subject).Error("Failed to terminate message")
		}
		c.mu.RLock()
		onExhausted := c.onExhausted
		c.mu.RUnlock()
		if onExhausted != nil {
			onExhausted(subject, data, err)
		}
		return
	}

	log.WithFields(fields).Warn("Failed to process message, scheduling redelivery")
	if nakErr := msg.NakWithDelay(c.redeliveryDelay * time.Duration(delivery)); nakErr != nil {
		log.WithError(nakErr).WithField("subject", subject).Error("Failed to NAK message")
	}
}

// Close gracefully shuts down the NATS connection, draining in-flight messages
func (c *NATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return nil
	}

	// Drain unsubscribes, waits for in-flight handlers and then closes
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	log.Info("NATS connection drained")
	return nil
}

// IsConnected returns true if the client is connected to NATS
func (c *NATSClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nc != nil && c.nc.IsConnected()
}

// EnsureStream creates the stream, or widens an existing one to cover its subjects
func (c *NATSClient) EnsureStream(spec StreamSpec) error {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return fmt.Errorf("not connected to NATS JetStream")
	}

	info, err := js.StreamInfo(spec.Name)
	if err == nil {
		missing := missingSubjects(info.Config.Subjects, spec.Subjects)
		if len(missing) == 0 {
			log.WithField("stream", spec.Name).Debug("JetStream stream already exists")
			return nil
		}
		cfg := info.Config
		cfg.Subjects = append(cfg.Subjects, missing...)
		if _, err := js.UpdateStream(&cfg); err != nil {
			return fmt.Errorf("failed to add subjects %v to stream %s: %w", missing, spec.Name, err)
		}
		log.WithFields(log.Fields{
			"stream":   spec.Name,
			"subjects": missing,
		}).Info("Added subjects to JetStream stream")
		return nil
	}

	cfg := &nats.StreamConfig{
		Name:        spec.Name,
		Subjects:    spec.Subjects,
		Description: spec.Description,
		Retention:   nats.LimitsPolicy,
		MaxAge:      spec.MaxAge,
		Duplicates:  spec.DuplicateWindow,
		Storage:     nats.FileStorage,
		Replicas:    1,
	}
	if _, err := js.AddStream(cfg); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", spec.Name, err)
	}

	log.WithFields(log.Fields{
		"stream":   spec.Name,
		"subjects": spec.Subjects,
	}).Info("Created JetStream stream")
	return nil
}

// missingSubjects returns the subjects in want that are not in have
func missingSubjects(have, want []string) []string {
	present := make(map[string]bool, len(have))
	for _, s := range have {
		present[s] = true
	}
	var missing []string
	for _, s := range want {
		if !present[s] {
			missing = append(missing, s)
		}
	}
	return missing
}

// Publish writes data to subject through JetStream. A non-empty msgID is used
// for server-side dedup within the stream's duplicate window.
func (c *NATSClient) Publish(ctx context.Context, subject string, msgID string, data []byte) error {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return fmt.Errorf("not connected to NATS JetStream")
	}

	opts := []nats.PubOpt{nats.Context(ctx)}
	if msgID != "" {
		opts = append(opts, nats.MsgId(msgID))
	}

	ack, err := js.Publish(subject, data, opts...)
	if err != nil {
		return fmt.Errorf("failed to publish message to subject %s: %w", subject, err)
	}

	log.WithFields(log.Fields{
		"subject":   subject,
		"size":      len(data),
		"sequence":  ack.Sequence,
		"duplicate": ack.Duplicate,
	}).Debug("Published message to NATS")
	return nil
}
