package reservation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kirinyoku/matchseats/internal/domain"
	"github.com/kirinyoku/matchseats/internal/repository"
)

// directAttempts bounds check-and-claim rounds: the first claim plus one retry
// after losing a race.
const directAttempts = 2

// DirectReserve synchronously tries to confirm seatID for userID.
//
// The seat check, the user check and the write are separate statements, so
// two callers can both pass the checks before either writes. The write is
// therefore a compare-and-insert over both uniqueness keys: the loser gets
// repository.ErrConflict, re-runs the checks once to learn which invariant
// blocked it, and is rejected.
//
// Returns:
//   - domain.Outcome: confirmed, or rejected with seat-taken or user-already-seated.
//   - error: ErrStoreUnavailable on store failure, InvalidIDError on bad input.
func (s *Service) DirectReserve(ctx context.Context, matchID, userID, seatID int64) (domain.Outcome, error) {
	const op = "service.reservation.DirectReserve"

	if err := validateIDs(matchID, userID, seatID); err != nil {
		return domain.Outcome{}, fmt.Errorf("%s:%w", op, err)
	}

	for attempt := 1; attempt <= directAttempts; attempt++ {
		out, decided, err := s.checkClaims(ctx, matchID, userID, seatID)
		if err != nil {
			s.metrics.ObserveOutcome(strategyDirect, "error", "")
			return domain.Outcome{}, storeErr(op, err)
		}
		if decided {
			s.observeDirect(out)
			return out, nil
		}

		cr := domain.ConfirmedReservation{
			MatchID:     matchID,
			UserID:      userID,
			SeatID:      seatID,
			ConfirmedAt: s.cfg.Clock(),
		}

		err = s.store.ClaimSeat(ctx, cr)
		if err == nil {
			out := domain.Confirmed(matchID, userID, seatID)
			s.observeDirect(out)
			s.notify(ctx, matchID, []domain.ConfirmedReservation{cr})
			return out, nil
		}

		if !errors.Is(err, repository.ErrConflict) {
			s.metrics.ObserveOutcome(strategyDirect, "error", "")
			return domain.Outcome{}, storeErr(op, err)
		}

		s.metrics.ObserveConflict(strategyDirect)
		s.logger.Debug("direct claim lost race",
			zap.Int64("match_id", matchID),
			zap.Int64("user_id", userID),
			zap.Int64("seat_id", seatID),
			zap.Int("attempt", attempt),
		)
	}

	// Both claims lost. The conflicting row is committed, so a final check
	// names the invariant that blocked us.
	out, decided, err := s.checkClaims(ctx, matchID, userID, seatID)
	if err != nil {
		s.metrics.ObserveOutcome(strategyDirect, "error", "")
		return domain.Outcome{}, storeErr(op, err)
	}
	if !decided {
		// Config rejects read levels that do not overlap the write level, so
		// this needs a concurrent reset or a store configured elsewhere.
		s.logger.Warn("conflicting claim not visible to read",
			zap.Int64("match_id", matchID),
			zap.Int64("seat_id", seatID),
		)
		out = domain.Rejected(matchID, userID, seatID, domain.ReasonSeatTaken)
	}

	s.observeDirect(out)

	return out, nil
}

// checkClaims runs the seat check and then the user check. decided is false
// when neither the seat nor the user is claimed yet.
//
// A seat already held by the same user counts as confirmed, so a caller that
// retries the whole operation after a store failure is not told its own seat
// is taken.
func (s *Service) checkClaims(
	ctx context.Context,
	matchID, userID, seatID int64,
) (out domain.Outcome, decided bool, err error) {
	bySeat, taken, err := s.store.ConfirmedBySeat(ctx, matchID, seatID)
	if err != nil {
		return domain.Outcome{}, false, err
	}
	if taken {
		if bySeat.UserID == userID {
			return domain.Confirmed(matchID, userID, seatID), true, nil
		}
		return domain.Rejected(matchID, userID, seatID, domain.ReasonSeatTaken), true, nil
	}

	_, seated, err := s.store.ConfirmedByUser(ctx, matchID, userID)
	if err != nil {
		return domain.Outcome{}, false, err
	}
	if seated {
		return domain.Rejected(matchID, userID, seatID, domain.ReasonUserAlreadySeated), true, nil
	}

	return domain.Outcome{}, false, nil
}

func (s *Service) observeDirect(out domain.Outcome) {
	s.metrics.ObserveOutcome(strategyDirect, string(out.Status), string(out.Reason))
}
