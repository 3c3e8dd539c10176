package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ledgerbot/application/dto"
	"ledgerbot/domain"
	"ledgerbot/domain/entities"

	log "github.com/sirupsen/logrus"
)

// VerifiedTransferHandler consumes verified deposits
type VerifiedTransferHandler interface {
	HandleVerifiedTransfer(ctx context.Context, transfer entities.VerifiedTransfer) (*dto.DepositResult, error)
}

// DepositEventListener converts verified deposit messages into reconciler calls
type DepositEventListener struct {
	handler    VerifiedTransferHandler
	onReceived func(eventType string)
}

// NewDepositEventListener creates a new deposit event listener
func NewDepositEventListener(handler VerifiedTransferHandler) *DepositEventListener {
	return &DepositEventListener{handler: handler}
}

// OnReceived registers a callback invoked for every message, used for metrics
func (l *DepositEventListener) OnReceived(fn func(eventType string)) {
	l.onReceived = fn
}

// HandleVerifiedDeposit processes one message from the verified deposit subject.
// Undecodable payloads are acknowledged and dropped since redelivery cannot fix them.
func (l *DepositEventListener) HandleVerifiedDeposit(ctx context.Context, data []byte) error {
	if l.onReceived != nil {
		l.onReceived("verified_deposit")
	}

	var payload dto.VerifiedTransferPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.WithError(err).Error("Dropping undecodable verified deposit message")
		return nil
	}

	transfer, err := payload.ToVerifiedTransfer()
	if err != nil {
		log.WithError(err).WithField("txHash", payload.TxHash).Error("Dropping invalid verified deposit message")
		return nil
	}

	result, err := l.handler.HandleVerifiedTransfer(ctx, transfer)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			log.WithError(err).WithField("txHash", transfer.TxHash).Error("Dropping verified deposit with invalid amount")
			return nil
		}
		return fmt.Errorf("failed to credit deposit %s: %w", transfer.TxHash, err)
	}

	log.WithFields(log.Fields{
		"txHash":    result.TxHash,
		"accountId": result.AccountID,
		"duplicate": result.Duplicate,
	}).Debug("Verified deposit handled")
	return nil
}
