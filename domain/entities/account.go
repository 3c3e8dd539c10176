package entities

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// AccountID identifies a ledger account. Positive values are chat users,
// non-positive values are reserved for system accounts.
type AccountID int64

// IsUser reports whether the id belongs to an ordinary user
func (id AccountID) IsUser() bool {
	return id > 0
}

// LockKey returns the key under which operations on this account are serialized
func (id AccountID) LockKey() string {
	return fmt.Sprintf("account:%d", int64(id))
}

// SortedLockKeys returns the distinct lock keys of accounts, lowest id first.
// Every multi-account operation acquires in this order.
func SortedLockKeys(accounts ...AccountID) []string {
	ids := make([]AccountID, 0, len(accounts))
	seen := make(map[AccountID]bool, len(accounts))
	for _, id := range accounts {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.LockKey()
	}
	return keys
}

// SystemAccounts holds the reserved account ids used by the ledger.
// It is passed to the ledger at construction rather than read from globals.
type SystemAccounts struct {
	Treasury    AccountID
	Reserve     AccountID
	Unclaimed   AccountID
	FineRevenue AccountID

	// EscrowBase is the id of giveaway 0's escrow; giveaway N uses EscrowBase-N.
	EscrowBase AccountID
}

// DefaultSystemAccounts returns the sentinel ids seeded by the initial migration
func DefaultSystemAccounts() SystemAccounts {
	return SystemAccounts{
		Treasury:    -1,
		Reserve:     -2,
		Unclaimed:   -3,
		FineRevenue: -4,
		EscrowBase:  -1_000_000,
	}
}

// HasEscrow reports whether giveawayID maps to an escrow account. Ids past the
// bound would wrap Escrow around into the user range.
func (s SystemAccounts) HasEscrow(giveawayID int64) bool {
	if s.EscrowBase >= 0 {
		return false
	}
	return giveawayID > 0 && giveawayID <= math.MaxInt64+int64(s.EscrowBase)
}

// Escrow returns the escrow account for a giveaway. Callers check HasEscrow first.
func (s SystemAccounts) Escrow(giveawayID int64) AccountID {
	return s.EscrowBase - AccountID(giveawayID)
}

// IsEscrow reports whether id is a giveaway escrow account
func (s SystemAccounts) IsEscrow(id AccountID) bool {
	return id <= s.EscrowBase
}

// IsSystem reports whether id is any reserved account
func (s SystemAccounts) IsSystem(id AccountID) bool {
	switch id {
	case s.Treasury, s.Reserve, s.Unclaimed, s.FineRevenue:
		return true
	}
	return s.IsEscrow(id)
}

// MayGoNegative reports whether the account balance is allowed below zero.
// Only the reserve may, to represent an owed correction.
func (s SystemAccounts) MayGoNegative(id AccountID) bool {
	return id == s.Reserve
}

// Name returns a human readable label for logs and reports
func (s SystemAccounts) Name(id AccountID) string {
	switch {
	case id == s.Treasury:
		return "TREASURY"
	case id == s.Reserve:
		return "RESERVE"
	case id == s.Unclaimed:
		return "UNCLAIMED"
	case id == s.FineRevenue:
		return "FINE_REVENUE"
	case s.IsEscrow(id):
		return fmt.Sprintf("ESCROW_%d", int64(s.EscrowBase-id))
	default:
		return fmt.Sprintf("user:%d", int64(id))
	}
}

// Account is the cached balance row of a ledger account
type Account struct {
	ID        AccountID `db:"id"`
	Balance   Amount    `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
