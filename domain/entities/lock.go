package entities

import "time"

// Lock is a short-lived lease serializing financial operations on one key
type Lock struct {
	Key        string    `db:"lock_key"`
	HolderID   string    `db:"holder_id"`
	Token      string    `db:"token"`
	AcquiredAt time.Time `db:"acquired_at"`
	ExpiresAt  time.Time `db:"expires_at"`
}

// IsExpired reports whether the lease has run past its TTL at now
func (l *Lock) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
