package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSortRequests(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("orders by request time first", func(t *testing.T) {
		reqs := []ReservationRequest{
			{MatchID: 1, UserID: 1, SeatID: 7, RequestedAt: base.Add(2 * time.Second)},
			{MatchID: 1, UserID: 9, SeatID: 7, RequestedAt: base.Add(time.Second)},
		}

		SortRequests(reqs)

		assert.Equal(t, int64(9), reqs[0].UserID)
		assert.Equal(t, int64(1), reqs[1].UserID)
	})

	t.Run("breaks ties by user id then seat id", func(t *testing.T) {
		reqs := []ReservationRequest{
			{MatchID: 1, UserID: 5, SeatID: 2, RequestedAt: base},
			{MatchID: 1, UserID: 3, SeatID: 9, RequestedAt: base},
			{MatchID: 1, UserID: 3, SeatID: 4, RequestedAt: base},
		}

		SortRequests(reqs)

		assert.Equal(t, []int64{3, 3, 5}, []int64{reqs[0].UserID, reqs[1].UserID, reqs[2].UserID})
		assert.Equal(t, []int64{4, 9, 2}, []int64{reqs[0].SeatID, reqs[1].SeatID, reqs[2].SeatID})
	})

	t.Run("is independent of input order", func(t *testing.T) {
		a := []ReservationRequest{
			{UserID: 2, SeatID: 1, RequestedAt: base},
			{UserID: 1, SeatID: 1, RequestedAt: base},
			{UserID: 3, SeatID: 1, RequestedAt: base.Add(-time.Millisecond)},
		}
		b := []ReservationRequest{a[2], a[0], a[1]}

		SortRequests(a)
		SortRequests(b)

		assert.Equal(t, a, b)
	})
}

func TestOutcome(t *testing.T) {
	ok := Confirmed(1, 3, 7)
	assert.True(t, ok.IsConfirmed())
	assert.Empty(t, ok.Reason)

	rej := Rejected(1, 5, 7, ReasonSeatTaken)
	assert.False(t, rej.IsConfirmed())
	assert.Equal(t, ReasonSeatTaken, rej.Reason)
}
