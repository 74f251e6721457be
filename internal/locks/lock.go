package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/quizlink-backend/pkg/instance"
)

const defaultLockTTL = 30 * time.Minute

// Lock guards one critical section. An instance serves one holder at a time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Locker hands out locks by key.
type Locker interface {
	For(key string) (Lock, error)
}

// ownerStore is the redis surface a lock needs: claim with a TTL and a
// release that checks the owner token server side.
type ownerStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
}

// RedisLock is a TTL lease on one redis key. The value is an owner token
// unique to each successful Acquire, so a holder whose lease expired cannot
// free a lock that another instance has since taken.
type RedisLock struct {
	store ownerStore
	key   string
	ttl   time.Duration
	owner string
}

func NewRedisLock(store ownerStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := fmt.Sprintf("%s/%s", instance.GetID(), uuid.NewString())
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("claim lock %s: %w", l.key, err)
	}
	if won {
		l.owner = token
	}
	return won, nil
}

// Release is a no-op unless this lock currently holds the lease.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	token := l.owner
	l.owner = ""
	if _, err := l.store.ReleaseIfOwner(ctx, l.key, token); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

type lockStore interface {
	ownerStore
	LockKey(scope, id string) string
}

// RedisLocker builds namespaced RedisLocks for one scope.
type RedisLocker struct {
	store lockStore
	scope string
	ttl   time.Duration
}

func NewRedisLocker(store lockStore, scope string, ttl time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis client required for locker")
	}
	if scope == "" {
		return nil, errors.New("lock scope is required")
	}
	return &RedisLocker{store: store, scope: scope, ttl: ttl}, nil
}

func (r *RedisLocker) For(key string) (Lock, error) {
	return NewRedisLock(r.store, r.store.LockKey(r.scope, key), r.ttl)
}
