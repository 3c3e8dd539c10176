package repository

import (
	"context"
	"fmt"

	"ledgerbot/database"
	"ledgerbot/domain"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerEntryRepository implements the LedgerEntryRepository interface
type LedgerEntryRepository struct {
	q Queryable
}

// NewLedgerEntryRepository creates a new ledger entry repository on the pool
func NewLedgerEntryRepository(db *database.DB) *LedgerEntryRepository {
	return &LedgerEntryRepository{q: db.Pool}
}

// NewLedgerEntryRepositoryScoped creates a new ledger entry repository inside a transaction
func NewLedgerEntryRepositoryScoped(tx Queryable) interfaces.LedgerEntryRepository {
	return &LedgerEntryRepository{q: tx}
}

const entryColumns = `
	id, group_id, entry_type, account_id, side, from_account, to_account,
	amount, external_tx_hash, external_address, status, description, created_at`

// Create inserts an entry and sets its ID and CreatedAt
func (r *LedgerEntryRepository) Create(ctx context.Context, entry *entities.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO ledger_entries (
			group_id, entry_type, account_id, side, from_account, to_account,
			amount, external_tx_hash, external_address, status, description
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		entry.GroupID,
		string(entry.Type),
		int64(entry.AccountID),
		string(entry.Side),
		accountIDPtr(entry.FromAccount),
		accountIDPtr(entry.ToAccount),
		int64(entry.Amount),
		entry.ExternalTxHash,
		entry.ExternalAddress,
		string(entry.Status),
		entry.Description,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create %s entry for account %d: %w", entry.Type, entry.AccountID, err)
	}
	return nil
}

// GetByGroup returns all entries of one operation ordered by id
func (r *LedgerEntryRepository) GetByGroup(ctx context.Context, groupID uuid.UUID) ([]*entities.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE group_id = $1 ORDER BY id`

	rows, err := r.q.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries of group %s: %w", groupID, err)
	}
	return collectEntries(rows)
}

// Settle moves a pending entry to completed or failed, optionally recording the chain tx hash
func (r *LedgerEntryRepository) Settle(ctx context.Context, id int64, status entities.EntryStatus, txHash *string) error {
	query := `
		UPDATE ledger_entries
		SET status = $2, external_tx_hash = COALESCE($3, external_tx_hash)
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.q.Exec(ctx, query, id, string(status), txHash)
	if err != nil {
		return fmt.Errorf("failed to settle entry %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry %d: %w", id, domain.ErrEntryNotPending)
	}
	return nil
}

// ListByAccount returns the newest entries of an account
func (r *LedgerEntryRepository) ListByAccount(ctx context.Context, accountID entities.AccountID, limit int) ([]*entities.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, int64(accountID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries of account %d: %w", accountID, err)
	}
	return collectEntries(rows)
}

// FoldBalances sums signed entry amounts per account
func (r *LedgerEntryRepository) FoldBalances(ctx context.Context) (map[entities.AccountID]entities.Amount, error) {
	query := `
		SELECT account_id,
		       SUM(CASE WHEN side = 'credit' THEN amount ELSE -amount END)::BIGINT
		FROM ledger_entries
		GROUP BY account_id
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fold balances: %w", err)
	}
	defer rows.Close()

	folded := make(map[entities.AccountID]entities.Amount)
	for rows.Next() {
		var accountID, total int64
		if err := rows.Scan(&accountID, &total); err != nil {
			return nil, fmt.Errorf("failed to scan folded balance: %w", err)
		}
		folded[entities.AccountID(accountID)] = entities.Amount(total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folded balances: %w", err)
	}
	return folded, nil
}

func collectEntries(rows pgx.Rows) ([]*entities.LedgerEntry, error) {
	defer rows.Close()

	var entries []*entities.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (*entities.LedgerEntry, error) {
	var (
		entry                   entities.LedgerEntry
		entryType, side, status string
		accountID, amount       int64
		fromAccount, toAccount  *int64
	)
	err := row.Scan(
		&entry.ID,
		&entry.GroupID,
		&entryType,
		&accountID,
		&side,
		&fromAccount,
		&toAccount,
		&amount,
		&entry.ExternalTxHash,
		&entry.ExternalAddress,
		&status,
		&entry.Description,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Type = entities.EntryType(entryType)
	entry.Side = entities.EntrySide(side)
	entry.Status = entities.EntryStatus(status)
	entry.AccountID = entities.AccountID(accountID)
	entry.Amount = entities.Amount(amount)
	entry.FromAccount = accountIDRef(fromAccount)
	entry.ToAccount = accountIDRef(toAccount)
	return &entry, nil
}

func accountIDPtr(id *entities.AccountID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

func accountIDRef(v *int64) *entities.AccountID {
	if v == nil {
		return nil
	}
	return entities.AccountRef(entities.AccountID(*v))
}
