package repository

import (
	"context"
	"time"
)

// Lease is an exclusive, expiring claim on a key.
type Lease interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}
