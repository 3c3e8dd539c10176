package infrastructure

import (
	"ledgerbot/domain/events"

	log "github.com/sirupsen/logrus"
)

// NoopEventPublisher drops events after logging them at debug level.
// Used by the CLI subcommands and when no message bus is configured.
type NoopEventPublisher struct{}

// NewNoopEventPublisher creates a new no-op event publisher
func NewNoopEventPublisher() *NoopEventPublisher {
	return &NoopEventPublisher{}
}

// Publish does nothing with the event
func (n *NoopEventPublisher) Publish(event events.Event) error {
	log.WithField("eventType", event.Type()).Debug("Dropping event, no publisher configured")
	return nil
}
