package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerbot/database"
	"ledgerbot/domain"
	"ledgerbot/domain/entities"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LockRepository implements interfaces.LockManager with a lease table.
// Leases are written outside any unit of work so they are visible to other
// processes before the guarded transaction starts.
type LockRepository struct {
	q        Queryable
	newToken func() string
}

// NewLockRepository creates a lease-table lock manager on the pool
func NewLockRepository(db *database.DB) *LockRepository {
	return &LockRepository{
		q:        db.Pool,
		newToken: func() string { return uuid.NewString() },
	}
}

// Acquire inserts a lease for key, taking over a row only if its lease has expired.
// Returns domain.ErrLockBusy without waiting when a live lease exists.
func (r *LockRepository) Acquire(ctx context.Context, key string, holder string, ttl time.Duration) (*entities.Lock, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive, got %s", ttl)
	}

	query := `
		INSERT INTO account_locks (lock_key, holder_id, token, acquired_at, expires_at)
		VALUES ($1, $2, $3, NOW(), NOW() + $4::BIGINT * INTERVAL '1 millisecond')
		ON CONFLICT (lock_key) DO UPDATE
		SET holder_id = EXCLUDED.holder_id,
		    token = EXCLUDED.token,
		    acquired_at = EXCLUDED.acquired_at,
		    expires_at = EXCLUDED.expires_at
		WHERE account_locks.expires_at <= NOW()
		RETURNING lock_key, holder_id, token, acquired_at, expires_at
	`

	var lock entities.Lock
	err := r.q.QueryRow(ctx, query, key, holder, r.newToken(), ttl.Milliseconds()).Scan(
		&lock.Key,
		&lock.HolderID,
		&lock.Token,
		&lock.AcquiredAt,
		&lock.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrLockBusy)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return &lock, nil
}

// Release deletes the lease only if it still carries the caller's token
func (r *LockRepository) Release(ctx context.Context, lock *entities.Lock) error {
	query := `DELETE FROM account_locks WHERE lock_key = $1 AND token = $2`

	tag, err := r.q.Exec(ctx, query, lock.Key, lock.Token)
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", lock.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", lock.Key, domain.ErrLockNotHeld)
	}
	return nil
}

// SweepExpired deletes every lease past its expiry
func (r *LockRepository) SweepExpired(ctx context.Context) (int, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM account_locks WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired locks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
