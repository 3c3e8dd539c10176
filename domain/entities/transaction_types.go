package entities

// EntryType represents the kind of ledger mutation
type EntryType string

// All entry types supported by the ledger
const (
	EntryTypeDeposit    EntryType = "deposit"
	EntryTypeWithdrawal EntryType = "withdrawal"
	EntryTypeTransfer   EntryType = "transfer"
	EntryTypeFine       EntryType = "fine"
	EntryTypeBail       EntryType = "bail"
	EntryTypeGiveaway   EntryType = "giveaway"
	EntryTypeAdjustment EntryType = "adjustment"
)

// IsPaired returns true if every group of this type must hold exactly one
// debit and one credit of equal magnitude
func (t EntryType) IsPaired() bool {
	return t == EntryTypeTransfer ||
		t == EntryTypeFine ||
		t == EntryTypeBail
}

// IsExternal returns true if the entry type moves value across the chain boundary
func (t EntryType) IsExternal() bool {
	return t == EntryTypeDeposit ||
		t == EntryTypeWithdrawal
}

// IsValid reports whether t is a known entry type
func (t EntryType) IsValid() bool {
	switch t {
	case EntryTypeDeposit, EntryTypeWithdrawal, EntryTypeTransfer, EntryTypeFine,
		EntryTypeBail, EntryTypeGiveaway, EntryTypeAdjustment:
		return true
	}
	return false
}

// String returns the string representation of the entry type
func (t EntryType) String() string {
	return string(t)
}

// EntryStatus is the lifecycle state of a ledger entry
type EntryStatus string

const (
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusFailed    EntryStatus = "failed"
	EntryStatusPending   EntryStatus = "pending"
)

// EntrySide says whether the entry removes value from or adds value to its account
type EntrySide string

const (
	EntrySideDebit  EntrySide = "debit"
	EntrySideCredit EntrySide = "credit"
)
