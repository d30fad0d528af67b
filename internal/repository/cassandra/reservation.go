package cassandrarepo

import (
	"context"
	"fmt"
	"sort"

	"github.com/gocql/gocql"

	"github.com/kirinyoku/matchseats/internal/domain"
	"github.com/kirinyoku/matchseats/internal/repository"
)

const (
	claimSeat = "seat"
	claimUser = "user"
)

func (s *Store) confirmedOne(ctx context.Context, st Statement, matchID, id int64) (domain.ConfirmedReservation, bool, error) {
	var (
		out   domain.ConfirmedReservation
		found bool
	)

	err := s.gw.ExecuteRead(ctx, st, []any{matchID, id}, func(sc gocql.Scanner) error {
		out.MatchID = matchID
		found = true
		return sc.Scan(&out.UserID, &out.SeatID, &out.ConfirmedAt)
	})
	if err != nil {
		return domain.ConfirmedReservation{}, false, err
	}

	return out, found, nil
}

func (s *Store) ConfirmedBySeat(ctx context.Context, matchID, seatID int64) (domain.ConfirmedReservation, bool, error) {
	return s.confirmedOne(ctx, s.stmt.confirmedBySeat, matchID, seatID)
}

func (s *Store) ConfirmedByUser(ctx context.Context, matchID, userID int64) (domain.ConfirmedReservation, bool, error) {
	return s.confirmedOne(ctx, s.stmt.confirmedByUser, matchID, userID)
}

// ListConfirmed returns one row per confirmation, ordered by seat.
func (s *Store) ListConfirmed(ctx context.Context, matchID int64) ([]domain.ConfirmedReservation, error) {
	out := []domain.ConfirmedReservation{}

	err := s.gw.ExecuteRead(ctx, s.stmt.listConfirmed, []any{matchID}, func(sc gocql.Scanner) error {
		r := domain.ConfirmedReservation{MatchID: matchID}
		if err := sc.Scan(&r.UserID, &r.SeatID, &r.ConfirmedAt); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// ClaimSeat inserts the seat claim and the user claim in one conditional
// batch. Either both land or neither does.
func (s *Store) ClaimSeat(ctx context.Context, r domain.ConfirmedReservation) error {
	const op = "cassandrarepo.ClaimSeat"

	applied, err := s.gw.ExecuteConditional(ctx, s.write,
		s.stmt.claim.Bind(r.MatchID, claimSeat, r.SeatID, r.UserID, r.SeatID, r.ConfirmedAt),
		s.stmt.claim.Bind(r.MatchID, claimUser, r.UserID, r.UserID, r.SeatID, r.ConfirmedAt),
	)
	if err != nil {
		return err
	}

	if !applied {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	return nil
}

func (s *Store) AppendRequest(ctx context.Context, r domain.ReservationRequest) error {
	return s.gw.ExecuteWrite(ctx, s.stmt.appendRequest, r.MatchID, r.UserID, r.SeatID, r.RequestedAt)
}

func (s *Store) ListRequests(ctx context.Context, matchID int64) ([]domain.ReservationRequest, error) {
	out := []domain.ReservationRequest{}

	err := s.gw.ExecuteRead(ctx, s.stmt.listRequests, []any{matchID}, func(sc gocql.Scanner) error {
		r := domain.ReservationRequest{MatchID: matchID}
		if err := sc.Scan(&r.UserID, &r.SeatID, &r.RequestedAt); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (s *Store) DeleteRequest(ctx context.Context, r domain.ReservationRequest) error {
	return s.gw.ExecuteWrite(ctx, s.stmt.deleteRequest, r.MatchID, r.UserID, r.SeatID)
}

// PendingMatches scans every intake partition. Fine for the workload's
// handful of matches.
func (s *Store) PendingMatches(ctx context.Context) ([]int64, error) {
	var ids []int64

	err := s.gw.ExecuteRead(ctx, s.stmt.pendingMatches, nil, func(sc gocql.Scanner) error {
		var id int64
		if err := sc.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}
