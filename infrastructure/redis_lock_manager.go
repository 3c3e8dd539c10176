package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ledgerbot/domain"
	"ledgerbot/domain/entities"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	redisLockPrefix   = "ledger:lock:"
	redisLockExpiries = "ledger:locks:expiry"
)

// releaseScript deletes the lease only if it still holds the caller's value
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("ZREM", KEYS[2], ARGV[2])
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockManager implements interfaces.LockManager with SET NX PX leases.
// Redis expires the lease keys itself; a sorted set indexes expiry times so
// the sweep can report and prune leases that lapsed without a release.
type RedisLockManager struct {
	client   *redis.Client
	newToken func() string
	now      func() time.Time
}

// NewRedisLockManager creates a new Redis-backed lock manager
func NewRedisLockManager(client *redis.Client) *RedisLockManager {
	return &RedisLockManager{
		client:   client,
		newToken: func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

func leaseValue(holder, token string) string {
	return holder + "|" + token
}

// Acquire sets the lease key unless it exists
func (m *RedisLockManager) Acquire(ctx context.Context, key string, holder string, ttl time.Duration) (*entities.Lock, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive, got %s", ttl)
	}

	token := m.newToken()
	now := m.now()

	ok, err := m.client.SetNX(ctx, redisLockPrefix+key, leaseValue(holder, token), ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrLockBusy)
	}

	lock := &entities.Lock{
		Key:        key,
		HolderID:   holder,
		Token:      token,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	expiry := &redis.Z{Score: float64(lock.ExpiresAt.UnixMilli()), Member: key}
	if err := m.client.ZAdd(ctx, redisLockExpiries, expiry).Err(); err != nil {
		// Drop the unindexed lease so the caller can retry cleanly
		_ = m.Release(context.WithoutCancel(ctx), lock)
		return nil, fmt.Errorf("failed to index lock %s: %w", key, err)
	}
	return lock, nil
}

// Release deletes the lease only if the token still matches
func (m *RedisLockManager) Release(ctx context.Context, lock *entities.Lock) error {
	keys := []string{redisLockPrefix + lock.Key, redisLockExpiries}
	deleted, err := releaseScript.Run(ctx, m.client, keys, leaseValue(lock.HolderID, lock.Token), lock.Key).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", lock.Key, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%s: %w", lock.Key, domain.ErrLockNotHeld)
	}
	return nil
}

// SweepExpired prunes index entries whose leases have lapsed
func (m *RedisLockManager) SweepExpired(ctx context.Context) (int, error) {
	cutoff := strconv.FormatInt(m.now().UnixMilli(), 10)
	removed, err := m.client.ZRemRangeByScore(ctx, redisLockExpiries, "-inf", cutoff).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired locks: %w", err)
	}
	return int(removed), nil
}
