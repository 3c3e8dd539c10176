package repository

import (
	"context"
	"errors"
	"fmt"

	"ledgerbot/database"
	"ledgerbot/domain"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// AccountRepository implements the AccountRepository interface
type AccountRepository struct {
	q Queryable
}

// NewAccountRepository creates a new account repository on the pool
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{q: db.Pool}
}

// NewAccountRepositoryScoped creates a new account repository inside a transaction
func NewAccountRepositoryScoped(tx Queryable) interfaces.AccountRepository {
	return &AccountRepository{q: tx}
}

const accountColumns = `id, balance, created_at, updated_at`

// GetByID retrieves an account by id
func (r *AccountRepository) GetByID(ctx context.Context, id entities.AccountID) (*entities.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.q.QueryRow(ctx, query, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", id, err)
	}
	return account, nil
}

// GetForUpdate retrieves an account and locks its row for the rest of the transaction
func (r *AccountRepository) GetForUpdate(ctx context.Context, id entities.AccountID) (*entities.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	account, err := scanAccount(r.q.QueryRow(ctx, query, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d for update: %w", id, err)
	}
	return account, nil
}

// EnsureAccount creates the account with a zero balance unless it exists
func (r *AccountRepository) EnsureAccount(ctx context.Context, id entities.AccountID) (*entities.Account, error) {
	query := `
		INSERT INTO accounts (id, balance)
		VALUES ($1, 0)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.q.Exec(ctx, query, int64(id)); err != nil {
		return nil, fmt.Errorf("failed to ensure account %d: %w", id, err)
	}

	account, err := r.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("account %d missing after insert", id)
	}
	return account, nil
}

// UpdateBalance sets the cached balance of an account
func (r *AccountRepository) UpdateBalance(ctx context.Context, id entities.AccountID, newBalance entities.Amount) error {
	query := `
		UPDATE accounts
		SET balance = $2, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, int64(id), int64(newBalance))
	if err != nil {
		return fmt.Errorf("failed to update balance of account %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %d: %w", id, domain.ErrAccountUnresolved)
	}
	return nil
}

// SumBalances returns the total of all balances except the excluded accounts
func (r *AccountRepository) SumBalances(ctx context.Context, exclude []entities.AccountID) (entities.Amount, error) {
	query := `
		SELECT COALESCE(SUM(balance), 0)::BIGINT
		FROM accounts
		WHERE id <> ALL($1::BIGINT[])
	`

	ids := make([]int64, len(exclude))
	for i, id := range exclude {
		ids[i] = int64(id)
	}

	var total int64
	if err := r.q.QueryRow(ctx, query, ids).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum balances: %w", err)
	}
	return entities.Amount(total), nil
}

// GetAll returns every account ordered by id
func (r *AccountRepository) GetAll(ctx context.Context) ([]*entities.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*entities.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

func scanAccount(row pgx.Row) (*entities.Account, error) {
	var (
		account entities.Account
		id      int64
		balance int64
	)
	if err := row.Scan(&id, &balance, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return nil, err
	}
	account.ID = entities.AccountID(id)
	account.Balance = entities.Amount(balance)
	return &account, nil
}
