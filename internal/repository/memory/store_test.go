package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/matchseats/internal/domain"
	"github.com/kirinyoku/matchseats/internal/repository"
)

func TestStore_ClaimSeat(t *testing.T) {
	ctx := context.Background()

	t.Run("claims seat and user together", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.ClaimSeat(ctx, domain.ConfirmedReservation{MatchID: 1, UserID: 3, SeatID: 7}))

		bySeat, ok, err := s.ConfirmedBySeat(ctx, 1, 7)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(3), bySeat.UserID)

		byUser, ok, err := s.ConfirmedByUser(ctx, 1, 3)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(7), byUser.SeatID)
	})

	t.Run("rejects a taken seat", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.ClaimSeat(ctx, domain.ConfirmedReservation{MatchID: 1, UserID: 3, SeatID: 7}))

		err := s.ClaimSeat(ctx, domain.ConfirmedReservation{MatchID: 1, UserID: 5, SeatID: 7})
		assert.ErrorIs(t, err, repository.ErrConflict)

		_, ok, err := s.ConfirmedByUser(ctx, 1, 5)
		require.NoError(t, err)
		assert.False(t, ok, "failed claim must not leave a user row behind")
	})

	t.Run("rejects a seated user", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.ClaimSeat(ctx, domain.ConfirmedReservation{MatchID: 1, UserID: 3, SeatID: 7}))

		err := s.ClaimSeat(ctx, domain.ConfirmedReservation{MatchID: 1, UserID: 3, SeatID: 8})
		assert.ErrorIs(t, err, repository.ErrConflict)

		_, ok, err := s.ConfirmedBySeat(ctx, 1, 8)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("scopes claims to the match", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.ClaimSeat(ctx, domain.ConfirmedReservation{MatchID: 1, UserID: 3, SeatID: 7}))
		require.NoError(t, s.ClaimSeat(ctx, domain.ConfirmedReservation{MatchID: 2, UserID: 3, SeatID: 7}))
	})

	t.Run("exactly one of many concurrent claims wins", func(t *testing.T) {
		s := NewStore()

		var wg sync.WaitGroup
		errs := make(chan error, 50)
		for u := int64(1); u <= 50; u++ {
			wg.Add(1)
			go func(userID int64) {
				defer wg.Done()
				errs <- s.ClaimSeat(ctx, domain.ConfirmedReservation{MatchID: 1, UserID: userID, SeatID: 7})
			}(u)
		}
		wg.Wait()
		close(errs)

		wins := 0
		for err := range errs {
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, repository.ErrConflict)
			}
		}
		assert.Equal(t, 1, wins)
	})
}

func TestStore_Requests(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()

	require.NoError(t, s.AppendRequest(ctx, domain.ReservationRequest{MatchID: 1, UserID: 3, SeatID: 7, RequestedAt: now}))
	require.NoError(t, s.AppendRequest(ctx, domain.ReservationRequest{MatchID: 1, UserID: 3, SeatID: 8, RequestedAt: now}))
	require.NoError(t, s.AppendRequest(ctx, domain.ReservationRequest{MatchID: 2, UserID: 5, SeatID: 7, RequestedAt: now}))

	reqs, err := s.ListRequests(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, reqs, 2)

	pending, err := s.PendingMatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, pending)

	require.NoError(t, s.DeleteRequest(ctx, domain.ReservationRequest{MatchID: 2, UserID: 5, SeatID: 7}))

	pending, err = s.PendingMatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, pending)
	assert.Equal(t, int64(4), s.Writes())
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()

	require.NoError(t, s.UpsertUsers(ctx, []domain.User{{ID: 3, Name: "user-3"}}))
	require.NoError(t, s.AppendRequest(ctx, domain.ReservationRequest{MatchID: 1, UserID: 3, SeatID: 7, RequestedAt: now}))
	require.NoError(t, s.ClaimSeat(ctx, domain.ConfirmedReservation{MatchID: 2, UserID: 3, SeatID: 7, ConfirmedAt: now}))

	require.NoError(t, s.Reset(ctx))

	pending, err := s.PendingMatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	rows, err := s.ListConfirmed(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, ok, err := s.ConfirmedByUser(ctx, 2, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	users, _, _, _ := s.Counts()
	assert.Equal(t, 1, users, "seed data survives a reset")

	require.NoError(t, s.ClaimSeat(ctx, domain.ConfirmedReservation{MatchID: 2, UserID: 3, SeatID: 7, ConfirmedAt: now}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.Reset(cancelled), context.Canceled)
}

func TestLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocker()

	lease, err := l.Acquire(ctx, "match:1", time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "match:1", time.Second)
	assert.ErrorIs(t, err, repository.ErrLocked)

	other, err := l.Acquire(ctx, "match:2", time.Second)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Extend(ctx, time.Second))
	require.NoError(t, lease.Release(ctx))
	assert.ErrorIs(t, lease.Release(ctx), repository.ErrLeaseLost)

	again, err := l.Acquire(ctx, "match:1", time.Second)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}
