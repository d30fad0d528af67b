package redisrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kirinyoku/matchseats/internal/repository"
)

// Ownership is checked and acted on in one script so a lease that expired
// and was taken by someone else is never released or extended.
var (
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`)

	extendScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// Locker hands out expiring leases shared by every process using the same
// redis.
type Locker struct {
	rdb *redis.Client
}

func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (repository.Lease, error) {
	const op = "redis.Locker.Acquire"

	key := KeyLock(name)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%s:%w: %w", op, repository.ErrStore, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrLocked)
	}

	return &lease{rdb: l.rdb, key: key, token: token}, nil
}

type lease struct {
	rdb   *redis.Client
	key   string
	token string
}

func (l *lease) Extend(ctx context.Context, ttl time.Duration) error {
	const op = "redis.lease.Extend"

	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("%s:%w: %w", op, repository.ErrStore, err)
	}
	if n == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrLeaseLost)
	}

	return nil
}

func (l *lease) Release(ctx context.Context) error {
	const op = "redis.lease.Release"

	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("%s:%w: %w", op, repository.ErrStore, err)
	}
	if n == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrLeaseLost)
	}

	return nil
}
