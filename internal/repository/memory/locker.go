package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/matchseats/internal/repository"
)

// Locker hands out process-local leases. Leases do not expire; ttl is
// accepted for interface parity with the redis locker.
type Locker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]string)}
}

func (l *Locker) Acquire(ctx context.Context, key string, _ time.Duration) (repository.Lease, error) {
	const op = "memory.Locker.Acquire"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrLocked)
	}

	token := uuid.NewString()
	l.held[key] = token

	return &lease{locker: l, key: key, token: token}, nil
}

type lease struct {
	locker *Locker
	key    string
	token  string
}

func (l *lease) owned() bool {
	return l.locker.held[l.key] == l.token
}

func (l *lease) Extend(_ context.Context, _ time.Duration) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	if !l.owned() {
		return repository.ErrLeaseLost
	}

	return nil
}

func (l *lease) Release(_ context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	if !l.owned() {
		return repository.ErrLeaseLost
	}

	delete(l.locker.held, l.key)

	return nil
}
