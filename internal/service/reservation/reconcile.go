package reservation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kirinyoku/matchseats/internal/domain"
	"github.com/kirinyoku/matchseats/internal/repository"
)

// Rejection is a request the reconciler discarded and the invariant that
// blocked it.
type Rejection struct {
	Request domain.ReservationRequest `json:"request"`
	Reason  domain.RejectReason       `json:"reason"`
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	MatchID   int64                         `json:"match_id"`
	Confirmed []domain.ConfirmedReservation `json:"confirmed"`
	Rejected  []Rejection                   `json:"rejected"`
}

// Processed reports how many requests the pass consumed.
func (r Result) Processed() int {
	return len(r.Confirmed) + len(r.Rejected)
}

// LockKey is the lease key guarding reconciliation of a match.
func LockKey(matchID int64) string {
	return "reconcile:match:" + strconv.FormatInt(matchID, 10)
}

// Reconcile resolves every pending request of a match into a confirmation or
// a rejection.
//
// The pass holds the match lease for its whole duration; if another owner
// holds it, ErrReconcileBusy is returned and nothing is read or written.
// Concurrent calls in this process for the same match share one pass. A
// caller whose ctx ends stops waiting; the pass itself runs to completion,
// bounded by Config.PassTimeout when set.
//
// Requests are processed by (requested_at, user id, seat id). Each decision
// sees every earlier decision of the pass. A request is deleted from the
// intake only after its decision is committed, so a pass interrupted by a
// store failure can be rerun: the next pass re-reads confirmed state and
// rejects requests whose confirmation already landed.
func (s *Service) Reconcile(ctx context.Context, matchID int64) (Result, error) {
	const op = "service.reservation.Reconcile"

	if matchID <= 0 {
		return Result{}, fmt.Errorf("%s:%w", op, InvalidIDError{Field: "match id", Value: matchID})
	}

	// The pass outlives any single caller: callers that joined it keep
	// waiting when the one that started it goes away.
	ch := s.passes.DoChan(LockKey(matchID), func() (any, error) {
		passCtx, cancel := s.passContext(ctx)
		defer cancel()
		return s.reconcileLocked(passCtx, matchID)
	})

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("%s:%w", op, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

func (s *Service) passContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if s.cfg.PassTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.PassTimeout)
	}
	return ctx, func() {}
}

func (s *Service) reconcileLocked(ctx context.Context, matchID int64) (res Result, err error) {
	const op = "service.reservation.Reconcile"

	started := time.Now()
	defer func() {
		status := "ok"
		switch {
		case errors.Is(err, ErrReconcileBusy):
			status = "busy"
		case err != nil:
			status = "error"
		}
		s.metrics.ObserveReconcile(status, started)
	}()

	lockStarted := time.Now()
	lease, err := s.locker.Acquire(ctx, LockKey(matchID), s.cfg.LockTTL)
	s.metrics.ObserveLock("acquire", err, lockStarted)
	if err != nil {
		if errors.Is(err, repository.ErrLocked) {
			return Result{}, fmt.Errorf("%s:%w", op, ErrReconcileBusy)
		}
		return Result{}, storeErr(op, err)
	}
	defer func() {
		relStarted := time.Now()
		relErr := lease.Release(context.WithoutCancel(ctx))
		s.metrics.ObserveLock("release", relErr, relStarted)
		if relErr != nil && !errors.Is(relErr, repository.ErrLeaseLost) {
			s.logger.Warn("release reconcile lease failed",
				zap.Int64("match_id", matchID),
				zap.Error(relErr),
			)
		}
	}()

	res, err = s.reconcilePass(ctx, matchID, lease)

	// Confirmations committed before a failure are still real.
	s.notify(ctx, matchID, res.Confirmed)

	if err != nil {
		s.logger.Error("reconcile pass aborted",
			zap.Int64("match_id", matchID),
			zap.Int("confirmed", len(res.Confirmed)),
			zap.Int("rejected", len(res.Rejected)),
			zap.Error(err),
		)
		return Result{}, err
	}

	if res.Processed() > 0 {
		s.logger.Info("reconcile pass finished",
			zap.Int64("match_id", matchID),
			zap.Int("confirmed", len(res.Confirmed)),
			zap.Int("rejected", len(res.Rejected)),
			zap.Duration("took", time.Since(started)),
		)
	}

	return res, nil
}

// confirmedView is the pass-local picture of committed claims.
type confirmedView struct {
	bySeat map[int64]int64
	byUser map[int64]int64
}

func newConfirmedView(rs []domain.ConfirmedReservation) confirmedView {
	v := confirmedView{
		bySeat: make(map[int64]int64, len(rs)),
		byUser: make(map[int64]int64, len(rs)),
	}
	for _, r := range rs {
		v.add(r.UserID, r.SeatID)
	}
	return v
}

func (v confirmedView) add(userID, seatID int64) {
	v.bySeat[seatID] = userID
	v.byUser[userID] = seatID
}

func (v confirmedView) decide(userID, seatID int64) (domain.RejectReason, bool) {
	if _, ok := v.byUser[userID]; ok {
		return domain.ReasonUserAlreadySeated, true
	}
	if _, ok := v.bySeat[seatID]; ok {
		return domain.ReasonSeatTaken, true
	}
	return "", false
}

func (s *Service) reconcilePass(ctx context.Context, matchID int64, lease repository.Lease) (Result, error) {
	const op = "service.reservation.Reconcile"

	res := Result{
		MatchID:   matchID,
		Confirmed: []domain.ConfirmedReservation{},
		Rejected:  []Rejection{},
	}

	reqs, err := s.store.ListRequests(ctx, matchID)
	if err != nil {
		return res, storeErr(op, err)
	}
	if len(reqs) == 0 {
		return res, nil
	}

	domain.SortRequests(reqs)

	confirmed, err := s.store.ListConfirmed(ctx, matchID)
	if err != nil {
		return res, storeErr(op, err)
	}
	view := newConfirmedView(confirmed)

	extended := time.Now()
	for _, req := range reqs {
		if time.Since(extended) >= s.cfg.LockTTL/2 {
			if err := lease.Extend(ctx, s.cfg.LockTTL); err != nil {
				if errors.Is(err, repository.ErrLeaseLost) {
					return res, fmt.Errorf("%s:%w: %w", op, ErrReconcileBusy, err)
				}
				return res, storeErr(op, err)
			}
			extended = time.Now()
		}

		if reason, rejected := view.decide(req.UserID, req.SeatID); rejected {
			if err := s.store.DeleteRequest(ctx, req); err != nil {
				return res, storeErr(op, err)
			}
			res.Rejected = append(res.Rejected, Rejection{Request: req, Reason: reason})
			s.metrics.ObserveOutcome(strategyQueued, string(domain.StatusRejected), string(reason))
			continue
		}

		cr := domain.ConfirmedReservation{
			MatchID:     matchID,
			UserID:      req.UserID,
			SeatID:      req.SeatID,
			ConfirmedAt: s.cfg.Clock(),
		}

		err := s.store.ClaimSeat(ctx, cr)
		switch {
		case err == nil:
			view.add(req.UserID, req.SeatID)
			res.Confirmed = append(res.Confirmed, cr)
			s.metrics.ObserveOutcome(strategyQueued, string(domain.StatusConfirmed), "")

		case errors.Is(err, repository.ErrConflict):
			// A writer outside the lease (the direct strategy) got there first.
			s.metrics.ObserveConflict(strategyQueued)
			reason, rerr := s.refreshView(ctx, view, matchID, req)
			if rerr != nil {
				return res, storeErr(op, rerr)
			}
			res.Rejected = append(res.Rejected, Rejection{Request: req, Reason: reason})
			s.metrics.ObserveOutcome(strategyQueued, string(domain.StatusRejected), string(reason))

		default:
			return res, storeErr(op, err)
		}

		if err := s.store.DeleteRequest(ctx, req); err != nil {
			return res, storeErr(op, err)
		}
	}

	return res, nil
}

// refreshView loads the claim rows that beat req into the view and names the
// blocking invariant, user first to match the pass order of checks.
func (s *Service) refreshView(
	ctx context.Context,
	view confirmedView,
	matchID int64,
	req domain.ReservationRequest,
) (domain.RejectReason, error) {
	reason := domain.RejectReason("")

	byUser, ok, err := s.store.ConfirmedByUser(ctx, matchID, req.UserID)
	if err != nil {
		return "", err
	}
	if ok {
		view.add(byUser.UserID, byUser.SeatID)
		reason = domain.ReasonUserAlreadySeated
	}

	bySeat, ok, err := s.store.ConfirmedBySeat(ctx, matchID, req.SeatID)
	if err != nil {
		return "", err
	}
	if ok {
		view.add(bySeat.UserID, bySeat.SeatID)
		if reason == "" {
			reason = domain.ReasonSeatTaken
		}
	}

	if reason == "" {
		s.logger.Warn("conflicting claim not visible to read",
			zap.Int64("match_id", matchID),
			zap.Int64("seat_id", req.SeatID),
		)
		reason = domain.ReasonSeatTaken
	}

	return reason, nil
}
