package postgresrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/matchseats/internal/domain"
	"github.com/kirinyoku/matchseats/internal/repository"
)

func (s *Store) confirmedOne(
	ctx context.Context,
	op, sql string,
	matchID, id int64,
) (domain.ConfirmedReservation, bool, error) {
	var r domain.ConfirmedReservation

	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, sql, matchID, id).
			Scan(&r.MatchID, &r.UserID, &r.SeatID, &r.ConfirmedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ConfirmedReservation{}, false, nil
	}
	if err != nil {
		return domain.ConfirmedReservation{}, false, wrapDBErr(op, err)
	}

	return r, true, nil
}

func (s *Store) ConfirmedBySeat(ctx context.Context, matchID, seatID int64) (domain.ConfirmedReservation, bool, error) {
	return s.confirmedOne(ctx, "postgres.Store.ConfirmedBySeat",
		`SELECT match_id, user_id, seat_id, confirmed_at
		 FROM confirmed_reservations
		 WHERE match_id = $1 AND seat_id = $2`,
		matchID, seatID,
	)
}

func (s *Store) ConfirmedByUser(ctx context.Context, matchID, userID int64) (domain.ConfirmedReservation, bool, error) {
	return s.confirmedOne(ctx, "postgres.Store.ConfirmedByUser",
		`SELECT match_id, user_id, seat_id, confirmed_at
		 FROM confirmed_reservations
		 WHERE match_id = $1 AND user_id = $2`,
		matchID, userID,
	)
}

func (s *Store) ListConfirmed(ctx context.Context, matchID int64) ([]domain.ConfirmedReservation, error) {
	const op = "postgres.Store.ListConfirmed"

	var out []domain.ConfirmedReservation

	err := s.withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx,
			`SELECT match_id, user_id, seat_id, confirmed_at
			 FROM confirmed_reservations
			 WHERE match_id = $1
			 ORDER BY seat_id`,
			matchID,
		)
		if err != nil {
			return err
		}

		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ConfirmedReservation, error) {
			var r domain.ConfirmedReservation
			err := row.Scan(&r.MatchID, &r.UserID, &r.SeatID, &r.ConfirmedAt)
			return r, err
		})
		return err
	})
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// ClaimSeat inserts the confirmation unless the seat or the user is already
// claimed for the match.
func (s *Store) ClaimSeat(ctx context.Context, r domain.ConfirmedReservation) error {
	const op = "postgres.Store.ClaimSeat"

	var affected int64

	err := s.withRetry(ctx, func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx,
			`INSERT INTO confirmed_reservations (match_id, user_id, seat_id, confirmed_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT DO NOTHING`,
			r.MatchID, r.UserID, r.SeatID, r.ConfirmedAt,
		)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return wrapDBErr(op, err)
	}

	if affected == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	return nil
}

func (s *Store) AppendRequest(ctx context.Context, r domain.ReservationRequest) error {
	const op = "postgres.Store.AppendRequest"

	err := s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.Exec(ctx,
			`INSERT INTO reservation_requests (match_id, user_id, seat_id, requested_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (match_id, user_id, seat_id) DO UPDATE SET requested_at = EXCLUDED.requested_at`,
			r.MatchID, r.UserID, r.SeatID, r.RequestedAt,
		)
		return err
	})

	return wrapDBErr(op, err)
}

func (s *Store) ListRequests(ctx context.Context, matchID int64) ([]domain.ReservationRequest, error) {
	const op = "postgres.Store.ListRequests"

	var out []domain.ReservationRequest

	err := s.withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx,
			`SELECT match_id, user_id, seat_id, requested_at
			 FROM reservation_requests
			 WHERE match_id = $1`,
			matchID,
		)
		if err != nil {
			return err
		}

		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ReservationRequest, error) {
			var r domain.ReservationRequest
			err := row.Scan(&r.MatchID, &r.UserID, &r.SeatID, &r.RequestedAt)
			return r, err
		})
		return err
	})
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (s *Store) DeleteRequest(ctx context.Context, r domain.ReservationRequest) error {
	const op = "postgres.Store.DeleteRequest"

	err := s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.Exec(ctx,
			`DELETE FROM reservation_requests
			 WHERE match_id = $1 AND user_id = $2 AND seat_id = $3`,
			r.MatchID, r.UserID, r.SeatID,
		)
		return err
	})

	return wrapDBErr(op, err)
}

func (s *Store) PendingMatches(ctx context.Context) ([]int64, error) {
	const op = "postgres.Store.PendingMatches"

	var ids []int64

	err := s.withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx,
			`SELECT DISTINCT match_id FROM reservation_requests ORDER BY match_id`,
		)
		if err != nil {
			return err
		}

		ids, err = pgx.CollectRows(rows, pgx.RowTo[int64])
		return err
	})
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ids, nil
}
