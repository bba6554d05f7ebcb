package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/GregMSThompson/finance-workers/internal/errs"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Lease is a held lock. Extend pushes the expiry out by the locker's TTL and
// fails with a LockedError once the lock is no longer owned.
type Lease interface {
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

// RedisLocker hands out exclusive, expiring locks on named resources.
type RedisLocker struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func lockKey(resource string) string {
	return "finance-workers:lock:" + resource
}

// Acquire takes the lock on resource or returns a LockedError when another
// holder has it.
func (l *RedisLocker) Acquire(ctx context.Context, resource string) (Lease, error) {
	lease := &redisLease{
		rdb:      l.rdb,
		ttl:      l.ttl,
		resource: resource,
		key:      lockKey(resource),
		token:    uuid.NewString(),
	}
	acquired, err := l.rdb.SetNX(ctx, lease.key, lease.token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", resource, err)
	}
	if !acquired {
		return nil, errs.NewLockedError(resource)
	}
	return lease, nil
}

type redisLease struct {
	rdb      redis.UniversalClient
	ttl      time.Duration
	resource string
	key      string
	token    string
}

func (l *redisLease) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.resource, err)
	}
	if n == 0 {
		return errs.NewLockedError(l.resource)
	}
	return nil
}

// Release deletes the lock only if this lease still owns it.
func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("unlock %s: %w", l.resource, err)
	}
	return nil
}
