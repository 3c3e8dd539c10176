package dto

import (
	"fmt"

	"ledgerbot/domain/entities"
)

// VerifiedTransferPayload is the JSON body published on the verified deposit subject.
// Amount is a decimal token quantity, e.g. "10.5".
type VerifiedTransferPayload struct {
	TxHash      string `json:"tx_hash"`
	Amount      string `json:"amount"`
	FromAddress string `json:"from_address"`
	Memo        string `json:"memo"`
	Height      int64  `json:"height"`
}

// ToVerifiedTransfer validates the payload and converts it to a domain transfer
func (p VerifiedTransferPayload) ToVerifiedTransfer() (entities.VerifiedTransfer, error) {
	hash := entities.NormalizeTxHash(p.TxHash)
	if hash == "" {
		return entities.VerifiedTransfer{}, fmt.Errorf("verified transfer has no tx hash")
	}

	amount, err := entities.ParseAmount(p.Amount)
	if err != nil {
		return entities.VerifiedTransfer{}, fmt.Errorf("verified transfer %s: %w", hash, err)
	}
	if err := amount.ValidatePositive(); err != nil {
		return entities.VerifiedTransfer{}, fmt.Errorf("verified transfer %s: %w", hash, err)
	}

	return entities.VerifiedTransfer{
		TxHash:      hash,
		Amount:      amount,
		FromAddress: p.FromAddress,
		Memo:        p.Memo,
		Height:      p.Height,
	}, nil
}

// FromVerifiedTransfer builds the wire payload for a domain transfer
func FromVerifiedTransfer(t entities.VerifiedTransfer) VerifiedTransferPayload {
	return VerifiedTransferPayload{
		TxHash:      t.TxHash,
		Amount:      t.Amount.Decimal().String(),
		FromAddress: t.FromAddress,
		Memo:        t.Memo,
		Height:      t.Height,
	}
}
