package infrastructure

import (
	"ledgerbot/application"
	"ledgerbot/domain/interfaces"
)

// RepositoryFactory builds repository-level units of work around a transactional publisher.
// Both the Postgres repository and the in-memory store implement it.
type RepositoryFactory interface {
	CreateWithPublisher(transactionalPublisher interfaces.TransactionalEventPublisher) application.UnitOfWork
}

// UnitOfWorkFactory implements application.UnitOfWorkFactory.
// Every unit of work gets its own transactional publisher that is flushed
// to the shared event publisher after commit.
type UnitOfWorkFactory struct {
	repoFactory    RepositoryFactory
	eventPublisher interfaces.EventPublisher
}

// NewUnitOfWorkFactory creates a new UnitOfWorkFactory
func NewUnitOfWorkFactory(repoFactory RepositoryFactory, eventPublisher interfaces.EventPublisher) *UnitOfWorkFactory {
	if eventPublisher == nil {
		eventPublisher = NewNoopEventPublisher()
	}
	return &UnitOfWorkFactory{
		repoFactory:    repoFactory,
		eventPublisher: eventPublisher,
	}
}

// Create creates a new UnitOfWork with a transactional event publisher
func (f *UnitOfWorkFactory) Create() application.UnitOfWork {
	return f.repoFactory.CreateWithPublisher(NewTransactionalPublisher(f.eventPublisher))
}
