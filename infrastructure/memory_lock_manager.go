package infrastructure

import (
	"context"
	"sync"
	"time"

	"ledgerbot/domain"
	"ledgerbot/domain/entities"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// MemoryLockManager keeps leases in a map. It only serializes callers inside one process.
type MemoryLockManager struct {
	mu     sync.Mutex
	leases map[string]*entities.Lock
	now    func() time.Time
}

// NewMemoryLockManager creates a new in-process lock manager
func NewMemoryLockManager() *MemoryLockManager {
	return &MemoryLockManager{
		leases: make(map[string]*entities.Lock),
		now:    time.Now,
	}
}

// SetClock replaces the time source, for expiry tests
func (m *MemoryLockManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Acquire takes key unless a live lease holds it
func (m *MemoryLockManager) Acquire(_ context.Context, key string, holder string, ttl time.Duration) (*entities.Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.leases[key]; ok && !existing.IsExpired(now) {
		return nil, domain.ErrLockBusy
	}

	lock := &entities.Lock{
		Key:        key,
		HolderID:   holder,
		Token:      uuid.NewString(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	m.leases[key] = lock

	cp := *lock
	return &cp, nil
}

// Release deletes the lease if the token still matches
func (m *MemoryLockManager) Release(_ context.Context, lock *entities.Lock) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[lock.Key]
	if !ok || existing.Token != lock.Token {
		return domain.ErrLockNotHeld
	}
	delete(m.leases, lock.Key)
	return nil
}

// SweepExpired deletes every lease past its expiry
func (m *MemoryLockManager) SweepExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	swept := 0
	for key, lease := range m.leases {
		if lease.IsExpired(now) {
			log.WithFields(log.Fields{
				"lockKey": key,
				"holder":  lease.HolderID,
			}).Debug("Sweeping expired lock")
			delete(m.leases, key)
			swept++
		}
	}
	return swept, nil
}

// Held returns the number of leases currently stored, live or expired
func (m *MemoryLockManager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leases)
}
