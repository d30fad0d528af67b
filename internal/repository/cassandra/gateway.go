package cassandrarepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/kirinyoku/matchseats/internal/repository"
)

// Statement is an immutable CQL template with the consistency it runs at.
// Idempotent statements may be retried by the driver's retry policy.
type Statement struct {
	CQL         string
	Consistency gocql.Consistency
	Idempotent  bool
}

// Bound is a statement with its arguments, used inside conditional batches.
type Bound struct {
	Statement
	Args []any
}

func (s Statement) Bind(args ...any) Bound {
	return Bound{Statement: s, Args: args}
}

// Gateway executes statements on one session. It owns no statement state.
type Gateway struct {
	session *gocql.Session
	serial  gocql.SerialConsistency
}

func NewGateway(session *gocql.Session, serial gocql.SerialConsistency) *Gateway {
	return &Gateway{session: session, serial: serial}
}

func (g *Gateway) query(ctx context.Context, st Statement, args []any) *gocql.Query {
	return g.session.Query(st.CQL, args...).
		WithContext(ctx).
		Consistency(st.Consistency).
		Idempotent(st.Idempotent)
}

// ExecuteRead runs st and hands every result row to row. An empty result is
// not an error.
func (g *Gateway) ExecuteRead(ctx context.Context, st Statement, args []any, row func(gocql.Scanner) error) error {
	const op = "cassandrarepo.Gateway.ExecuteRead"

	return scanRows(op, g.query(ctx, st, args).Iter().Scanner(), row)
}

// scanRows feeds every row to row and closes the scanner. When row fails,
// a driver error reported on close is joined to it.
func scanRows(op string, scanner gocql.Scanner, row func(gocql.Scanner) error) error {
	for scanner.Next() {
		if err := row(scanner); err != nil {
			rowErr := fmt.Errorf("%s:%w", op, err)
			if serr := scanner.Err(); serr != nil {
				return errors.Join(rowErr, wrapErr(op, serr))
			}
			return rowErr
		}
	}

	if err := scanner.Err(); err != nil {
		return wrapErr(op, err)
	}

	return nil
}

func (g *Gateway) ExecuteWrite(ctx context.Context, st Statement, args ...any) error {
	const op = "cassandrarepo.Gateway.ExecuteWrite"

	if err := g.query(ctx, st, args).Exec(); err != nil {
		return wrapErr(op, err)
	}

	return nil
}

// ExecuteConditional applies stmts as one logged batch of lightweight
// transactions. All statements must target the same partition. applied is
// false when any condition failed, in which case nothing was written.
func (g *Gateway) ExecuteConditional(ctx context.Context, cons gocql.Consistency, stmts ...Bound) (bool, error) {
	const op = "cassandrarepo.Gateway.ExecuteConditional"

	if len(stmts) == 0 {
		return false, fmt.Errorf("%s: empty batch", op)
	}

	b := g.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.SetConsistency(cons)
	b.SerialConsistency(g.serial)
	for _, st := range stmts {
		b.Query(st.CQL, st.Args...)
	}

	applied, iter, err := g.session.MapExecuteBatchCAS(b, make(map[string]any))
	if iter != nil {
		if cerr := iter.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return false, wrapErr(op, err)
	}

	return applied, nil
}

// wrapErr marks driver failures as store failures. Context errors keep their
// identity so callers can tell cancellation apart.
func wrapErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s:%w", op, err)
	}
	return fmt.Errorf("%s:%w: %w", op, repository.ErrStore, err)
}
