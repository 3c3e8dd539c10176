// Package memstore is an in-process balance store with the same contracts as
// the Postgres repositories. A unit of work holds the store mutex from Begin
// until Commit or Rollback, so transactions are serialized; it backs tests and
// single-process development runs.
package memstore

import (
	"sync"
	"time"

	"ledgerbot/domain/entities"
)

// Store owns the committed state
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

type state struct {
	accounts      map[entities.AccountID]*entities.Account
	entries       []*entities.LedgerEntry
	deposits      map[string]*entities.ProcessedDeposit
	failures      []*entities.GatewayFailure
	nextEntryID   int64
	nextDepositID int64
	nextFailureID int64
}

// NewStore creates a store seeded with the system accounts, like the initial migration
func NewStore(accounts entities.SystemAccounts) *Store {
	s := &Store{
		state: &state{
			accounts: make(map[entities.AccountID]*entities.Account),
			deposits: make(map[string]*entities.ProcessedDeposit),
		},
		now: time.Now,
	}

	now := s.now().UTC()
	for _, id := range []entities.AccountID{accounts.Treasury, accounts.Reserve, accounts.Unclaimed, accounts.FineRevenue} {
		s.state.accounts[id] = &entities.Account{ID: id, CreatedAt: now, UpdatedAt: now}
	}
	return s
}

// SetClock replaces the time source used for timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// clone returns a deep copy that a unit of work can mutate freely
func (st *state) clone() *state {
	c := &state{
		accounts:      make(map[entities.AccountID]*entities.Account, len(st.accounts)),
		entries:       make([]*entities.LedgerEntry, len(st.entries)),
		deposits:      make(map[string]*entities.ProcessedDeposit, len(st.deposits)),
		failures:      make([]*entities.GatewayFailure, len(st.failures)),
		nextEntryID:   st.nextEntryID,
		nextDepositID: st.nextDepositID,
		nextFailureID: st.nextFailureID,
	}
	for id, a := range st.accounts {
		cp := *a
		c.accounts[id] = &cp
	}
	for i, e := range st.entries {
		cp := *e
		c.entries[i] = &cp
	}
	for hash, d := range st.deposits {
		cp := *d
		c.deposits[hash] = &cp
	}
	for i, f := range st.failures {
		cp := *f
		c.failures[i] = &cp
	}
	return c
}
