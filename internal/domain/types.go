package domain

import (
	"sort"
	"time"
)

type RejectReason string

const (
	ReasonSeatTaken         RejectReason = "seat-taken"
	ReasonUserAlreadySeated RejectReason = "user-already-seated"
)

type OutcomeStatus string

const (
	StatusConfirmed OutcomeStatus = "confirmed"
	StatusRejected  OutcomeStatus = "rejected"
)

type User struct {
	ID   int64
	Name string
}

type Match struct {
	ID          int64
	Name        string
	ScheduledAt time.Time
}

type Sector struct {
	ID     int64
	Name   string
	Active bool
}

// Seat belongs to exactly one sector by reference.
type Seat struct {
	ID       int64
	SectorID int64
	Number   int
	Active   bool
}

// ReservationRequest is an unvalidated intent to claim a seat. Several requests
// may target the same seat or come from the same user.
type ReservationRequest struct {
	MatchID     int64     `json:"match_id"`
	UserID      int64     `json:"user_id"`
	SeatID      int64     `json:"seat_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// Before reports whether r is processed ahead of o during reconciliation:
// earlier request time first, then lower user id, then lower seat id.
func (r ReservationRequest) Before(o ReservationRequest) bool {
	if !r.RequestedAt.Equal(o.RequestedAt) {
		return r.RequestedAt.Before(o.RequestedAt)
	}
	if r.UserID != o.UserID {
		return r.UserID < o.UserID
	}
	return r.SeatID < o.SeatID
}

// SortRequests orders requests in reconciliation order, independent of the
// order the store returned them in.
func SortRequests(reqs []ReservationRequest) {
	sort.SliceStable(reqs, func(i, j int) bool {
		return reqs[i].Before(reqs[j])
	})
}

// ConfirmedReservation is the authoritative assignment of a seat to a user for
// a match. It is never retracted.
type ConfirmedReservation struct {
	MatchID     int64     `json:"match_id"`
	UserID      int64     `json:"user_id"`
	SeatID      int64     `json:"seat_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// Outcome is the result of a single reservation attempt.
type Outcome struct {
	MatchID int64         `json:"match_id"`
	UserID  int64         `json:"user_id"`
	SeatID  int64         `json:"seat_id"`
	Status  OutcomeStatus `json:"status"`
	Reason  RejectReason  `json:"reason,omitempty"`
}

func Confirmed(matchID, userID, seatID int64) Outcome {
	return Outcome{MatchID: matchID, UserID: userID, SeatID: seatID, Status: StatusConfirmed}
}

func Rejected(matchID, userID, seatID int64, reason RejectReason) Outcome {
	return Outcome{
		MatchID: matchID,
		UserID:  userID,
		SeatID:  seatID,
		Status:  StatusRejected,
		Reason:  reason,
	}
}

func (o Outcome) IsConfirmed() bool {
	return o.Status == StatusConfirmed
}
