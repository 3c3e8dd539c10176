package application

import (
	"context"
	"fmt"

	"ledgerbot/application/dto"
	"ledgerbot/domain"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/interfaces"
	"ledgerbot/domain/services"

	log "github.com/sirupsen/logrus"
)

// DepositReconciler routes verified on-chain deposits to ledger accounts.
// It keeps no dedup state; the processed deposit table decides what was seen.
type DepositReconciler struct {
	ledger  DepositProcessor
	gateway interfaces.ChainGateway
}

// NewDepositReconciler creates a new deposit reconciler
func NewDepositReconciler(ledger DepositProcessor, gateway interfaces.ChainGateway) *DepositReconciler {
	return &DepositReconciler{
		ledger:  ledger,
		gateway: gateway,
	}
}

// HandleVerifiedTransfer credits the account named by the memo when it exists,
// otherwise the unclaimed account
func (r *DepositReconciler) HandleVerifiedTransfer(ctx context.Context, transfer entities.VerifiedTransfer) (*dto.DepositResult, error) {
	user, err := r.resolveMemo(ctx, transfer.Memo)
	if err != nil {
		return nil, err
	}

	return r.ledger.ProcessDeposit(ctx, dto.DepositRequest{
		User:        user,
		Amount:      transfer.Amount,
		TxHash:      transfer.TxHash,
		FromAddress: transfer.FromAddress,
		Memo:        transfer.Memo,
		Height:      transfer.Height,
	})
}

// ReconcileTxHash verifies a tx hash submitted by hand and credits it if it is a valid deposit
func (r *DepositReconciler) ReconcileTxHash(ctx context.Context, txHash string) (*dto.DepositResult, error) {
	txHash = entities.NormalizeTxHash(txHash)
	if txHash == "" {
		return nil, fmt.Errorf("%w: empty tx hash", domain.ErrTransferNotFound)
	}

	result, err := r.gateway.VerifyIncomingTransfer(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to verify %s: %v", domain.ErrGatewayFailure, txHash, err)
	}

	switch result.Status {
	case entities.VerificationVerified:
		log.WithFields(log.Fields{
			"txHash": txHash,
			"amount": result.Transfer.Amount.String(),
			"memo":   result.Transfer.Memo,
		}).Info("Manual deposit verified")
		return r.HandleVerifiedTransfer(ctx, *result.Transfer)
	case entities.VerificationNotFound:
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrTransferNotFound, txHash, result.Reason)
	default:
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrTransferMalformed, txHash, result.Reason)
	}
}

// resolveMemo returns the memo's user id if that account exists, zero otherwise
func (r *DepositReconciler) resolveMemo(ctx context.Context, memo string) (entities.AccountID, error) {
	id, ok := services.ParseMemo(memo)
	if !ok {
		return 0, nil
	}

	exists, err := r.ledger.AccountExists(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to look up memo account %d: %w", id, err)
	}
	if !exists {
		log.WithField("memo", memo).Info("Deposit memo names no known account, routing to unclaimed")
		return 0, nil
	}
	return id, nil
}
