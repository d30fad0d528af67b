package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/kirinyoku/matchseats/internal/domain"
	"github.com/kirinyoku/matchseats/internal/repository"
)

// === Mock implementations ===

// MockStore implements Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) ConfirmedBySeat(ctx context.Context, matchID, seatID int64) (domain.ConfirmedReservation, bool, error) {
	args := m.Called(ctx, matchID, seatID)
	return args.Get(0).(domain.ConfirmedReservation), args.Bool(1), args.Error(2)
}

func (m *MockStore) ConfirmedByUser(ctx context.Context, matchID, userID int64) (domain.ConfirmedReservation, bool, error) {
	args := m.Called(ctx, matchID, userID)
	return args.Get(0).(domain.ConfirmedReservation), args.Bool(1), args.Error(2)
}

func (m *MockStore) ListConfirmed(ctx context.Context, matchID int64) ([]domain.ConfirmedReservation, error) {
	args := m.Called(ctx, matchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ConfirmedReservation), args.Error(1)
}

func (m *MockStore) ClaimSeat(ctx context.Context, r domain.ConfirmedReservation) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockStore) AppendRequest(ctx context.Context, r domain.ReservationRequest) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockStore) ListRequests(ctx context.Context, matchID int64) ([]domain.ReservationRequest, error) {
	args := m.Called(ctx, matchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ReservationRequest), args.Error(1)
}

func (m *MockStore) DeleteRequest(ctx context.Context, r domain.ReservationRequest) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockStore) PendingMatches(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

// MockLocker implements Locker
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (repository.Lease, error) {
	args := m.Called(ctx, key, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(repository.Lease), args.Error(1)
}

// MockLease implements repository.Lease
type MockLease struct {
	mock.Mock
}

func (m *MockLease) Extend(ctx context.Context, ttl time.Duration) error {
	args := m.Called(ctx, ttl)
	return args.Error(0)
}

func (m *MockLease) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockTrigger implements Trigger
type MockTrigger struct {
	mock.Mock
}

func (m *MockTrigger) PublishPending(ctx context.Context, matchID int64) error {
	args := m.Called(ctx, matchID)
	return args.Error(0)
}

// === Test helpers ===

type recordingListener struct {
	mu  sync.Mutex
	got []domain.ConfirmedReservation
}

func (l *recordingListener) Confirmed(_ context.Context, _ int64, rs []domain.ConfirmedReservation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, rs...)
}

func (l *recordingListener) all() []domain.ConfirmedReservation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ConfirmedReservation(nil), l.got...)
}

// stepClock returns a clock that advances by one second on every call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// assertUnique checks that no seat and no user appears twice among the
// confirmed reservations of one match.
func assertUnique(t *testing.T, rows []domain.ConfirmedReservation) {
	t.Helper()

	seats := make(map[int64]int64)
	users := make(map[int64]int64)
	for _, r := range rows {
		if prev, ok := seats[r.SeatID]; ok {
			assert.Failf(t, "seat assigned twice", "seat %d held by users %d and %d", r.SeatID, prev, r.UserID)
		}
		if prev, ok := users[r.UserID]; ok {
			assert.Failf(t, "user seated twice", "user %d holds seats %d and %d", r.UserID, prev, r.SeatID)
		}
		seats[r.SeatID] = r.UserID
		users[r.UserID] = r.SeatID
	}
}
