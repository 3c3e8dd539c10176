package testutil

import (
	"ledgerbot/domain/entities"

	"github.com/google/uuid"
)

// CreateTestEntry creates a completed credit entry for an account
func CreateTestEntry(accountID entities.AccountID, amount entities.Amount, entryType entities.EntryType) *entities.LedgerEntry {
	return &entities.LedgerEntry{
		GroupID:     uuid.New(),
		Type:        entryType,
		AccountID:   accountID,
		Side:        entities.EntrySideCredit,
		ToAccount:   entities.AccountRef(accountID),
		Amount:      amount,
		Status:      entities.EntryStatusCompleted,
		Description: "test entry",
	}
}

// CreateTestPendingWithdrawal creates a pending withdrawal debit
func CreateTestPendingWithdrawal(accountID entities.AccountID, amount entities.Amount, address string) *entities.LedgerEntry {
	return &entities.LedgerEntry{
		GroupID:         uuid.New(),
		Type:            entities.EntryTypeWithdrawal,
		AccountID:       accountID,
		Side:            entities.EntrySideDebit,
		FromAccount:     entities.AccountRef(accountID),
		Amount:          amount,
		ExternalAddress: entities.StringRef(address),
		Status:          entities.EntryStatusPending,
		Description:     "test withdrawal",
	}
}

// CreateTestDeposit creates an unprocessed deposit for a tx hash
func CreateTestDeposit(txHash string, userID entities.AccountID, amount entities.Amount) *entities.ProcessedDeposit {
	return &entities.ProcessedDeposit{
		TxHash:      txHash,
		UserID:      userID,
		Amount:      amount,
		FromAddress: "0x000000000000000000000000000000000000dEaD",
		Memo:        "",
		ChainHeight: 1,
	}
}

// CreateTestGatewayFailure creates an open gateway failure record
func CreateTestGatewayFailure(accountID entities.AccountID, amount entities.Amount, outcomeUnknown bool) *entities.GatewayFailure {
	return &entities.GatewayFailure{
		AccountID:      accountID,
		EntryGroupID:   uuid.New(),
		ToAddress:      "0x000000000000000000000000000000000000bEEF",
		Amount:         amount,
		Error:          "submit transfer: connection reset",
		OutcomeUnknown: outcomeUnknown,
	}
}
