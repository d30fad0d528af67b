// Package queue publishes reservation events to RabbitMQ.
package queue

import (
	"encoding/json"
	"time"

	"github.com/kirinyoku/matchseats/internal/domain"
)

const ReservationConfirmedQueue = "reservation.confirmed"

// ReservationConfirmedEvent is emitted once per committed confirmation.
type ReservationConfirmedEvent struct {
	Type        string    `json:"type"`
	MatchID     int64     `json:"match_id"`
	UserID      int64     `json:"user_id"`
	SeatID      int64     `json:"seat_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

func NewReservationConfirmed(r domain.ConfirmedReservation) ReservationConfirmedEvent {
	return ReservationConfirmedEvent{
		Type:        "reservation_confirmed",
		MatchID:     r.MatchID,
		UserID:      r.UserID,
		SeatID:      r.SeatID,
		ConfirmedAt: r.ConfirmedAt.UTC(),
	}
}

func (e ReservationConfirmedEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
