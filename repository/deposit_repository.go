package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerbot/database"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DepositRepository implements the DepositRepository interface
type DepositRepository struct {
	q Queryable
}

// NewDepositRepository creates a new deposit repository on the pool
func NewDepositRepository(db *database.DB) *DepositRepository {
	return &DepositRepository{q: db.Pool}
}

// NewDepositRepositoryScoped creates a new deposit repository inside a transaction
func NewDepositRepositoryScoped(tx Queryable) interfaces.DepositRepository {
	return &DepositRepository{q: tx}
}

const depositColumns = `
	id, external_tx_hash, user_id, amount, from_address, memo, chain_height,
	processed, processed_at, error, entry_group_id, balance_after, created_at`

// InsertIfAbsent inserts a pending deposit unless the tx hash is already known.
// The unique index on external_tx_hash makes the check and the insert one atomic step.
func (r *DepositRepository) InsertIfAbsent(ctx context.Context, deposit *entities.ProcessedDeposit) (*entities.ProcessedDeposit, bool, error) {
	query := `
		INSERT INTO processed_deposits (
			external_tx_hash, user_id, amount, from_address, memo, chain_height
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (external_tx_hash) DO NOTHING
		RETURNING ` + depositColumns

	stored, err := scanDeposit(r.q.QueryRow(ctx, query,
		deposit.TxHash,
		int64(deposit.UserID),
		int64(deposit.Amount),
		deposit.FromAddress,
		deposit.Memo,
		deposit.ChainHeight,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert deposit %s: %w", deposit.TxHash, err)
	}

	existing, err := r.GetByTxHash(ctx, deposit.TxHash)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("deposit %s conflicted but was not found", deposit.TxHash)
	}
	return existing, false, nil
}

// GetByTxHash retrieves a deposit by its on-chain transaction hash
func (r *DepositRepository) GetByTxHash(ctx context.Context, txHash string) (*entities.ProcessedDeposit, error) {
	query := `SELECT ` + depositColumns + ` FROM processed_deposits WHERE external_tx_hash = $1`

	deposit, err := scanDeposit(r.q.QueryRow(ctx, query, txHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit %s: %w", txHash, err)
	}
	return deposit, nil
}

// MarkProcessed flips processed to true only if it is still false, keeping the
// credited balance so a repeated sighting can report the same result
func (r *DepositRepository) MarkProcessed(ctx context.Context, txHash string, userID entities.AccountID, groupID uuid.UUID, balanceAfter entities.Amount, at time.Time) (bool, error) {
	query := `
		UPDATE processed_deposits
		SET processed = TRUE,
		    processed_at = $5,
		    user_id = $2,
		    entry_group_id = $3,
		    balance_after = $4,
		    error = NULL
		WHERE external_tx_hash = $1 AND processed = FALSE
	`

	tag, err := r.q.Exec(ctx, query, txHash, int64(userID), groupID, int64(balanceAfter), at)
	if err != nil {
		return false, fmt.Errorf("failed to mark deposit %s processed: %w", txHash, err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordError stores the failure reason on an unprocessed deposit
func (r *DepositRepository) RecordError(ctx context.Context, txHash string, reason string) error {
	query := `
		UPDATE processed_deposits
		SET error = $2
		WHERE external_tx_hash = $1 AND processed = FALSE
	`

	if _, err := r.q.Exec(ctx, query, txHash, reason); err != nil {
		return fmt.Errorf("failed to record error on deposit %s: %w", txHash, err)
	}
	return nil
}

// ListFailed returns unprocessed deposits that carry an error, oldest first
func (r *DepositRepository) ListFailed(ctx context.Context, limit int) ([]*entities.ProcessedDeposit, error) {
	query := `
		SELECT ` + depositColumns + `
		FROM processed_deposits
		WHERE processed = FALSE AND error IS NOT NULL
		ORDER BY id
		LIMIT NULLIF($1::INT, 0)
	`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed deposits: %w", err)
	}
	defer rows.Close()

	var deposits []*entities.ProcessedDeposit
	for rows.Next() {
		deposit, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		deposits = append(deposits, deposit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deposits: %w", err)
	}
	return deposits, nil
}

func scanDeposit(row pgx.Row) (*entities.ProcessedDeposit, error) {
	var (
		deposit        entities.ProcessedDeposit
		userID, amount int64
		balanceAfter   *int64
	)
	err := row.Scan(
		&deposit.ID,
		&deposit.TxHash,
		&userID,
		&amount,
		&deposit.FromAddress,
		&deposit.Memo,
		&deposit.ChainHeight,
		&deposit.Processed,
		&deposit.ProcessedAt,
		&deposit.Error,
		&deposit.EntryGroupID,
		&balanceAfter,
		&deposit.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	deposit.UserID = entities.AccountID(userID)
	deposit.Amount = entities.Amount(amount)
	if balanceAfter != nil {
		balance := entities.Amount(*balanceAfter)
		deposit.BalanceAfter = &balance
	}
	return &deposit, nil
}
