package repository

import (
	"ledgerbot/application"
	"ledgerbot/database"
	"ledgerbot/domain/interfaces"
)

// CreateTestUnitOfWork creates a unit of work for tests with the provided transactional publisher
func CreateTestUnitOfWork(db *database.DB, transactionalPublisher interfaces.TransactionalEventPublisher) application.UnitOfWork {
	return NewUnitOfWorkFactory(db).CreateWithPublisher(transactionalPublisher)
}
