package memstore

import (
	"context"
	"fmt"

	"ledgerbot/application"
	"ledgerbot/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// UnitOfWorkFactory creates units of work over a Store
type UnitOfWorkFactory struct {
	store *Store
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(store *Store) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{store: store}
}

// CreateWithPublisher creates a new UnitOfWork that flushes transactionalPublisher on commit
func (f *UnitOfWorkFactory) CreateWithPublisher(transactionalPublisher interfaces.TransactionalEventPublisher) application.UnitOfWork {
	return &unitOfWork{
		store:                  f.store,
		transactionalPublisher: transactionalPublisher,
	}
}

type unitOfWork struct {
	store                  *Store
	working                *state
	ctx                    context.Context
	transactionalPublisher interfaces.TransactionalEventPublisher
}

// Begin takes the store mutex and snapshots the committed state
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.working != nil {
		return fmt.Errorf("transaction already started")
	}
	u.store.mu.Lock()
	u.working = u.store.state.clone()
	u.ctx = ctx
	return nil
}

// Commit publishes the working state and releases the store
func (u *unitOfWork) Commit() error {
	if u.working == nil {
		return fmt.Errorf("no transaction to commit")
	}
	u.store.state = u.working
	u.working = nil
	u.store.mu.Unlock()

	// The state is committed; a failed flush only loses the notifications
	if u.transactionalPublisher != nil {
		if err := u.transactionalPublisher.Flush(u.ctx); err != nil {
			log.WithError(err).Warn("Failed to flush events after commit")
		}
	}
	return nil
}

// Rollback drops the working state
func (u *unitOfWork) Rollback() error {
	if u.working == nil {
		return nil
	}
	u.working = nil
	u.store.mu.Unlock()

	if u.transactionalPublisher != nil {
		u.transactionalPublisher.Discard()
	}
	return nil
}

func (u *unitOfWork) mustState() *state {
	if u.working == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.working
}

func (u *unitOfWork) AccountRepository() interfaces.AccountRepository {
	return &accountRepository{st: u.mustState(), now: u.store.now}
}

func (u *unitOfWork) LedgerEntryRepository() interfaces.LedgerEntryRepository {
	return &ledgerEntryRepository{st: u.mustState(), now: u.store.now}
}

func (u *unitOfWork) DepositRepository() interfaces.DepositRepository {
	return &depositRepository{st: u.mustState(), now: u.store.now}
}

func (u *unitOfWork) GatewayFailureRepository() interfaces.GatewayFailureRepository {
	return &gatewayFailureRepository{st: u.mustState(), now: u.store.now}
}

// EventBus returns the transactional event publisher for this unit of work
func (u *unitOfWork) EventBus() interfaces.EventPublisher {
	if u.transactionalPublisher == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalPublisher
}
