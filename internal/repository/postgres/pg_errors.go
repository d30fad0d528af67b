package postgresrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirinyoku/matchseats/internal/repository"
)

// IsRetryable reports whether err left no effect behind and the statement
// can be re-run as is: serialization failures, deadlocks, and connection
// failures that happened before anything was sent.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
		return false
	}

	return pgconn.SafeToRetry(err)
}

func isUniqueViolation(err error) bool {
	var pge *pgconn.PgError
	return errors.As(err, &pge) && pge.Code == "23505"
}

func wrapDBErr(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s:%w", op, err)
	}

	if isUniqueViolation(err) {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	return fmt.Errorf("%s:%w: %w", op, repository.ErrStore, err)
}
