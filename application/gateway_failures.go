package application

import (
	"context"
	"fmt"
	"strings"

	"ledgerbot/domain/entities"

	log "github.com/sirupsen/logrus"
)

// GatewayFailures lists recorded withdrawal failures, newest first
func (e *LedgerEngine) GatewayFailures(ctx context.Context, unresolvedOnly bool, limit int) ([]*entities.GatewayFailure, error) {
	if limit <= 0 {
		limit = 100
	}
	var failures []*entities.GatewayFailure
	err := e.inTransaction(ctx, func(uow UnitOfWork) error {
		var err error
		failures, err = uow.GatewayFailureRepository().List(ctx, unresolvedOnly, limit)
		return err
	})
	return failures, err
}

// ResolveGatewayFailure closes a failure record after an operator investigated it.
// Resolution is bookkeeping only; any resubmission is a new withdrawal.
func (e *LedgerEngine) ResolveGatewayFailure(ctx context.Context, id int64, note string) (*entities.GatewayFailure, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, fmt.Errorf("resolution note is required")
	}

	var failure *entities.GatewayFailure
	err := e.inTransaction(ctx, func(uow UnitOfWork) error {
		repo := uow.GatewayFailureRepository()
		if err := repo.Resolve(ctx, id, note, e.now().UTC()); err != nil {
			return err
		}
		var err error
		failure, err = repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"failureId": id,
		"note":      note,
	}).Info("Gateway failure resolved")
	return failure, nil
}
