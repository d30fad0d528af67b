package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Retry bounds how often a statement is re-run after a retryable failure.
type Retry struct {
	Attempts   int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func DefaultRetry() Retry {
	return Retry{Attempts: 3, MinBackoff: 50 * time.Millisecond, MaxBackoff: time.Second}
}

// Store implements the reservation and seed stores on Postgres. Every
// reservation operation is a single autocommit statement; uniqueness is
// enforced by the confirmed_reservations constraints.
type Store struct {
	pool  *pgxpool.Pool
	db    DB
	retry Retry
}

func NewStore(pool *pgxpool.Pool, retry Retry) *Store {
	return &Store{
		pool:  pool,
		db:    pool,
		retry: retry,
	}
}

// RunTx runs fn inside a transaction, read committed unless opts says
// otherwise.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}
