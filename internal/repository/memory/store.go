package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kirinyoku/matchseats/internal/domain"
	"github.com/kirinyoku/matchseats/internal/repository"
)

type claimKey struct {
	matchID int64
	id      int64
}

type requestKey struct {
	userID int64
	seatID int64
}

// Store keeps every table in process memory. Each method is atomic with
// respect to the others, which mirrors per-row durability of the replicated
// store; ClaimSeat is the only multi-row atomic operation.
type Store struct {
	mu sync.RWMutex

	users   map[int64]domain.User
	matches map[int64]domain.Match
	sectors map[int64]domain.Sector
	seats   map[int64]domain.Seat

	requests map[int64]map[requestKey]domain.ReservationRequest
	bySeat   map[claimKey]domain.ConfirmedReservation
	byUser   map[claimKey]domain.ConfirmedReservation

	writes atomic.Int64
}

func NewStore() *Store {
	return &Store{
		users:    make(map[int64]domain.User),
		matches:  make(map[int64]domain.Match),
		sectors:  make(map[int64]domain.Sector),
		seats:    make(map[int64]domain.Seat),
		requests: make(map[int64]map[requestKey]domain.ReservationRequest),
		bySeat:   make(map[claimKey]domain.ConfirmedReservation),
		byUser:   make(map[claimKey]domain.ConfirmedReservation),
	}
}

// Writes returns the number of mutating operations applied so far.
func (s *Store) Writes() int64 {
	return s.writes.Load()
}

func (s *Store) ConfirmedBySeat(
	ctx context.Context,
	matchID, seatID int64,
) (domain.ConfirmedReservation, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ConfirmedReservation{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.bySeat[claimKey{matchID, seatID}]
	return r, ok, nil
}

func (s *Store) ConfirmedByUser(
	ctx context.Context,
	matchID, userID int64,
) (domain.ConfirmedReservation, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ConfirmedReservation{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byUser[claimKey{matchID, userID}]
	return r, ok, nil
}

func (s *Store) ListConfirmed(ctx context.Context, matchID int64) ([]domain.ConfirmedReservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ConfirmedReservation
	for k, r := range s.bySeat {
		if k.matchID == matchID {
			out = append(out, r)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SeatID < out[j].SeatID })

	return out, nil
}

// ClaimSeat inserts the confirmation only if neither the seat nor the user is
// already claimed for the match.
func (s *Store) ClaimSeat(ctx context.Context, r domain.ConfirmedReservation) error {
	const op = "memory.Store.ClaimSeat"

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seatKey := claimKey{r.MatchID, r.SeatID}
	userKey := claimKey{r.MatchID, r.UserID}

	if _, taken := s.bySeat[seatKey]; taken {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}
	if _, taken := s.byUser[userKey]; taken {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	s.bySeat[seatKey] = r
	s.byUser[userKey] = r
	s.writes.Add(1)

	return nil
}

func (s *Store) AppendRequest(ctx context.Context, r domain.ReservationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byMatch, ok := s.requests[r.MatchID]
	if !ok {
		byMatch = make(map[requestKey]domain.ReservationRequest)
		s.requests[r.MatchID] = byMatch
	}

	byMatch[requestKey{r.UserID, r.SeatID}] = r
	s.writes.Add(1)

	return nil
}

// ListRequests returns pending requests in no particular order.
func (s *Store) ListRequests(ctx context.Context, matchID int64) ([]domain.ReservationRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ReservationRequest, 0, len(s.requests[matchID]))
	for _, r := range s.requests[matchID] {
		out = append(out, r)
	}

	return out, nil
}

func (s *Store) DeleteRequest(ctx context.Context, r domain.ReservationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byMatch := s.requests[r.MatchID]
	delete(byMatch, requestKey{r.UserID, r.SeatID})
	if len(byMatch) == 0 {
		delete(s.requests, r.MatchID)
	}
	s.writes.Add(1)

	return nil
}

func (s *Store) PendingMatches(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]int64, 0, len(s.requests))
	for id := range s.requests {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out, nil
}
