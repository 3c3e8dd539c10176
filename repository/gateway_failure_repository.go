package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerbot/database"
	"ledgerbot/domain"
	"ledgerbot/domain/entities"
	"ledgerbot/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// GatewayFailureRepository implements the GatewayFailureRepository interface
type GatewayFailureRepository struct {
	q Queryable
}

// NewGatewayFailureRepository creates a new gateway failure repository on the pool
func NewGatewayFailureRepository(db *database.DB) *GatewayFailureRepository {
	return &GatewayFailureRepository{q: db.Pool}
}

// NewGatewayFailureRepositoryScoped creates a new gateway failure repository inside a transaction
func NewGatewayFailureRepositoryScoped(tx Queryable) interfaces.GatewayFailureRepository {
	return &GatewayFailureRepository{q: tx}
}

const failureColumns = `
	id, account_id, entry_group_id, to_address, amount, error, outcome_unknown,
	created_at, resolved_at, resolution_note`

// Create inserts a failure record
func (r *GatewayFailureRepository) Create(ctx context.Context, failure *entities.GatewayFailure) error {
	query := `
		INSERT INTO gateway_failures (
			account_id, entry_group_id, to_address, amount, error, outcome_unknown
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		int64(failure.AccountID),
		failure.EntryGroupID,
		failure.ToAddress,
		int64(failure.Amount),
		failure.Error,
		failure.OutcomeUnknown,
	).Scan(&failure.ID, &failure.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create gateway failure for account %d: %w", failure.AccountID, err)
	}
	return nil
}

// GetByID retrieves a failure record
func (r *GatewayFailureRepository) GetByID(ctx context.Context, id int64) (*entities.GatewayFailure, error) {
	query := `SELECT ` + failureColumns + ` FROM gateway_failures WHERE id = $1`

	failure, err := scanFailure(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gateway failure %d: %w", id, err)
	}
	return failure, nil
}

// List returns failure records, newest first
func (r *GatewayFailureRepository) List(ctx context.Context, unresolvedOnly bool, limit int) ([]*entities.GatewayFailure, error) {
	query := `
		SELECT ` + failureColumns + `
		FROM gateway_failures
		WHERE NOT $1::BOOLEAN OR resolved_at IS NULL
		ORDER BY id DESC
		LIMIT NULLIF($2::INT, 0)
	`

	rows, err := r.q.Query(ctx, query, unresolvedOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list gateway failures: %w", err)
	}
	defer rows.Close()

	var failures []*entities.GatewayFailure
	for rows.Next() {
		failure, err := scanFailure(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gateway failure: %w", err)
		}
		failures = append(failures, failure)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gateway failures: %w", err)
	}
	return failures, nil
}

// Resolve closes an open failure record
func (r *GatewayFailureRepository) Resolve(ctx context.Context, id int64, note string, at time.Time) error {
	query := `
		UPDATE gateway_failures
		SET resolved_at = $2, resolution_note = $3
		WHERE id = $1 AND resolved_at IS NULL
	`

	tag, err := r.q.Exec(ctx, query, id, at, note)
	if err != nil {
		return fmt.Errorf("failed to resolve gateway failure %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("gateway failure %d: %w", id, domain.ErrFailureNotFound)
	}
	return nil
}

func scanFailure(row pgx.Row) (*entities.GatewayFailure, error) {
	var (
		failure           entities.GatewayFailure
		accountID, amount int64
	)
	err := row.Scan(
		&failure.ID,
		&accountID,
		&failure.EntryGroupID,
		&failure.ToAddress,
		&amount,
		&failure.Error,
		&failure.OutcomeUnknown,
		&failure.CreatedAt,
		&failure.ResolvedAt,
		&failure.ResolutionNote,
	)
	if err != nil {
		return nil, err
	}
	failure.AccountID = entities.AccountID(accountID)
	failure.Amount = entities.Amount(amount)
	return &failure, nil
}
