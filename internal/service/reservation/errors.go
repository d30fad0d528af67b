package reservation

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable wraps every store failure surfaced by the service.
	// The failed operation left no partial confirmation behind and may be
	// retried as a whole.
	ErrStoreUnavailable = errors.New("reservation store unavailable")
	// ErrReconcileBusy is returned when another reconciler owns the match.
	ErrReconcileBusy = errors.New("match is being reconciled by another owner")
)

type InvalidIDError struct {
	Field string
	Value int64
}

func (e InvalidIDError) Error() string {
	return fmt.Sprintf("invalid %s: %d", e.Field, e.Value)
}

type NoSeatsError struct{}

func (e NoSeatsError) Error() string {
	return "no seats selected"
}

func validateIDs(matchID, userID int64, seatIDs ...int64) error {
	if matchID <= 0 {
		return InvalidIDError{Field: "match id", Value: matchID}
	}
	if userID <= 0 {
		return InvalidIDError{Field: "user id", Value: userID}
	}
	if len(seatIDs) == 0 {
		return NoSeatsError{}
	}
	for _, id := range seatIDs {
		if id <= 0 {
			return InvalidIDError{Field: "seat id", Value: id}
		}
	}
	return nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s:%w", op, err)
	}
	return fmt.Errorf("%s:%w: %w", op, ErrStoreUnavailable, err)
}
