package testhelpers

import (
	"context"
	"sync"

	"ledgerbot/domain/events"
)

// RecordingPublisher collects published events for assertions
type RecordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *RecordingPublisher) Publish(event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far
func (p *RecordingPublisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Event, len(p.events))
	copy(out, p.events)
	return out
}

// OfType returns the published events of one type
func (p *RecordingPublisher) OfType(eventType events.EventType) []events.Event {
	var out []events.Event
	for _, e := range p.Events() {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Alert is one recorded operator notification
type Alert struct {
	Title   string
	Message string
}

// RecordingAlerter collects operator alerts for assertions
type RecordingAlerter struct {
	mu     sync.Mutex
	alerts []Alert
}

func (a *RecordingAlerter) Alert(_ context.Context, title string, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, Alert{Title: title, Message: message})
	return nil
}

// Alerts returns a copy of everything sent so far
func (a *RecordingAlerter) Alerts() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Alert, len(a.alerts))
	copy(out, a.alerts)
	return out
}
