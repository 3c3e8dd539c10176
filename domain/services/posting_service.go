package services

import (
	"fmt"

	"ledgerbot/domain"
	"ledgerbot/domain/entities"

	"github.com/google/uuid"
)

// PostingService contains the pure rules for turning an operation into ledger entries
type PostingService struct {
	accounts entities.SystemAccounts
}

// NewPostingService creates a new PostingService
func NewPostingService(accounts entities.SystemAccounts) *PostingService {
	return &PostingService{accounts: accounts}
}

// TransferParameters describes a movement of value between two accounts
type TransferParameters struct {
	From            entities.AccountID
	To              entities.AccountID
	Amount          entities.Amount
	Type            entities.EntryType
	Status          entities.EntryStatus
	Description     string
	ExternalTxHash  string
	ExternalAddress string
}

// BuildTransfer validates params and returns the debit and credit entries of one group
func (s *PostingService) BuildTransfer(params TransferParameters) ([]*entities.LedgerEntry, error) {
	if params.From == params.To {
		return nil, domain.ErrSameAccount
	}
	if err := params.Amount.ValidatePositive(); err != nil {
		return nil, err
	}
	status := params.Status
	if status == "" {
		status = entities.EntryStatusCompleted
	}

	groupID := uuid.New()
	base := entities.LedgerEntry{
		GroupID:         groupID,
		Type:            params.Type,
		FromAccount:     entities.AccountRef(params.From),
		ToAccount:       entities.AccountRef(params.To),
		Amount:          params.Amount,
		ExternalTxHash:  entities.StringRef(params.ExternalTxHash),
		ExternalAddress: entities.StringRef(params.ExternalAddress),
		Status:          status,
		Description:     params.Description,
	}

	debit := base
	debit.AccountID = params.From
	debit.Side = entities.EntrySideDebit

	credit := base
	credit.AccountID = params.To
	credit.Side = entities.EntrySideCredit

	return []*entities.LedgerEntry{&debit, &credit}, nil
}

// SingleParameters describes a one-sided mutation with no counterpart account
type SingleParameters struct {
	Account         entities.AccountID
	Side            entities.EntrySide
	Amount          entities.Amount
	Type            entities.EntryType
	Status          entities.EntryStatus
	Description     string
	ExternalTxHash  string
	ExternalAddress string
}

// BuildSingle returns one entry that changes the internal total by itself.
// Deposits, withdrawals and reserve corrections are the only legitimate users.
func (s *PostingService) BuildSingle(params SingleParameters) (*entities.LedgerEntry, error) {
	if err := params.Amount.ValidatePositive(); err != nil {
		return nil, err
	}
	if params.Type.IsPaired() {
		return nil, fmt.Errorf("%s entries must be posted in pairs", params.Type)
	}
	status := params.Status
	if status == "" {
		status = entities.EntryStatusCompleted
	}

	entry := &entities.LedgerEntry{
		GroupID:         uuid.New(),
		Type:            params.Type,
		AccountID:       params.Account,
		Side:            params.Side,
		Amount:          params.Amount,
		ExternalTxHash:  entities.StringRef(params.ExternalTxHash),
		ExternalAddress: entities.StringRef(params.ExternalAddress),
		Status:          status,
		Description:     params.Description,
	}
	if params.Side == entities.EntrySideDebit {
		entry.FromAccount = entities.AccountRef(params.Account)
	} else {
		entry.ToAccount = entities.AccountRef(params.Account)
	}
	return entry, nil
}

// ApplyEntry computes the balance change of entry against the current balance.
// Only accounts allowed to go negative may end below zero.
func (s *PostingService) ApplyEntry(balance entities.Amount, entry *entities.LedgerEntry) (*entities.BalanceChange, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	after, err := balance.Add(entry.SignedAmount())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.accounts.Name(entry.AccountID), err)
	}
	if after < 0 && !s.accounts.MayGoNegative(entry.AccountID) {
		return nil, fmt.Errorf("%s has %s, needs %s: %w",
			s.accounts.Name(entry.AccountID), balance, entry.Amount, domain.ErrInsufficientBalance)
	}

	return &entities.BalanceChange{
		AccountID:     entry.AccountID,
		BalanceBefore: balance,
		BalanceAfter:  after,
		ChangeAmount:  entry.SignedAmount(),
		Type:          entry.Type,
	}, nil
}

// CheckConservation verifies that each paired group has one debit and one credit of equal amount
func (s *PostingService) CheckConservation(entries []*entities.LedgerEntry) error {
	type sides struct {
		entryType entities.EntryType
		debits    int
		credits   int
		debitSum  entities.Amount
		creditSum entities.Amount
	}

	groups := make(map[uuid.UUID]*sides)
	for _, e := range entries {
		g, ok := groups[e.GroupID]
		if !ok {
			g = &sides{entryType: e.Type}
			groups[e.GroupID] = g
		}
		if e.Side == entities.EntrySideDebit {
			g.debits++
			g.debitSum += e.Amount
		} else {
			g.credits++
			g.creditSum += e.Amount
		}
	}

	for id, g := range groups {
		if !g.entryType.IsPaired() {
			continue
		}
		if g.debits != 1 || g.credits != 1 || g.debitSum != g.creditSum {
			return fmt.Errorf("group %s (%s) is unbalanced: %d debits of %s, %d credits of %s",
				id, g.entryType, g.debits, g.debitSum, g.credits, g.creditSum)
		}
	}
	return nil
}

// LockKeys returns the distinct lock keys for accounts in ascending order
func (s *PostingService) LockKeys(accounts ...entities.AccountID) []string {
	return entities.SortedLockKeys(accounts...)
}
