package httpgin

import (
	"time"

	"github.com/kirinyoku/matchseats/internal/domain"
	"github.com/kirinyoku/matchseats/internal/service/reservation"
	"github.com/kirinyoku/matchseats/internal/worker"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type ReservationResponse struct {
	UserID      int64     `json:"user_id"`
	SeatID      int64     `json:"seat_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type ListReservationsResponse struct {
	MatchID      int64                 `json:"match_id"`
	Count        int                   `json:"count"`
	Reservations []ReservationResponse `json:"reservations"`
}

type RejectionResponse struct {
	UserID int64  `json:"user_id"`
	SeatID int64  `json:"seat_id"`
	Reason string `json:"reason"`
}

type ReconcileResponse struct {
	MatchID   int64                 `json:"match_id"`
	Processed int                   `json:"processed"`
	Confirmed []ReservationResponse `json:"confirmed"`
	Rejected  []RejectionResponse   `json:"rejected"`
}

type PendingMatchesResponse struct {
	MatchIDs []int64 `json:"match_ids"`
}

type StatsResponse struct {
	Intents   int64 `json:"intents"`
	Confirmed int64 `json:"confirmed"`
	Rejected  int64 `json:"rejected"`
	Submitted int64 `json:"submitted"`
	Errors    int64 `json:"errors"`
}

func toReservations(rs []domain.ConfirmedReservation) []ReservationResponse {
	out := make([]ReservationResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, ReservationResponse{
			UserID:      r.UserID,
			SeatID:      r.SeatID,
			ConfirmedAt: r.ConfirmedAt.UTC(),
		})
	}
	return out
}

func newListResponse(matchID int64, rs []domain.ConfirmedReservation) ListReservationsResponse {
	return ListReservationsResponse{
		MatchID:      matchID,
		Count:        len(rs),
		Reservations: toReservations(rs),
	}
}

func newReconcileResponse(res reservation.Result) ReconcileResponse {
	rejected := make([]RejectionResponse, 0, len(res.Rejected))
	for _, r := range res.Rejected {
		rejected = append(rejected, RejectionResponse{
			UserID: r.Request.UserID,
			SeatID: r.Request.SeatID,
			Reason: string(r.Reason),
		})
	}

	return ReconcileResponse{
		MatchID:   res.MatchID,
		Processed: res.Processed(),
		Confirmed: toReservations(res.Confirmed),
		Rejected:  rejected,
	}
}

func newStatsResponse(st worker.Stats) StatsResponse {
	return StatsResponse{
		Intents:   st.Intents,
		Confirmed: st.Confirmed,
		Rejected:  st.Rejected,
		Submitted: st.Submitted,
		Errors:    st.Errors,
	}
}
