package infrastructure

import (
	"fmt"

	"ledgerbot/domain/events"
)

// Subjects published by the ledger
const (
	SubjectBalanceChanged         = "ledger.balance.changed"
	SubjectDepositCredited        = "ledger.deposit.credited"
	SubjectWithdrawalFailed       = "ledger.withdrawal.failed"
	SubjectReconciliationMismatch = "ledger.reconciliation.mismatch"
)

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its corresponding NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypeBalanceChange:
		return SubjectBalanceChanged
	case events.EventTypeDepositCredited:
		return SubjectDepositCredited
	case events.EventTypeWithdrawalFailed:
		return SubjectWithdrawalFailed
	case events.EventTypeReconciliationMismatch:
		return SubjectReconciliationMismatch
	default:
		return fmt.Sprintf("ledger.unknown.%s", event.Type())
	}
}

// GetAllSubjects returns all subjects that this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		SubjectBalanceChanged,
		SubjectDepositCredited,
		SubjectWithdrawalFailed,
		SubjectReconciliationMismatch,
	}
}
