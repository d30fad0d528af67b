package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/matchseats/internal/service/reservation"
)

type Reconciler interface {
	Reconcile(ctx context.Context, matchID int64) (reservation.Result, error)
	PendingMatches(ctx context.Context) ([]int64, error)
}

// Subscriber delivers "match has pending requests" hints.
type Subscriber interface {
	Subscribe(ctx context.Context, handler func(ctx context.Context, matchID int64)) error
}

// Scheduler reconciles matches on a fixed interval and whenever a hint
// arrives. Both paths go through Reconcile, which enforces one writer per
// match.
type Scheduler struct {
	rec      Reconciler
	sub      Subscriber
	interval time.Duration
	logger   *zap.Logger
}

func NewScheduler(rec Reconciler, sub Subscriber, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{rec: rec, sub: sub, interval: interval, logger: logger}
}

// Sweep reconciles every match with pending requests once. A busy match is
// skipped; it is already being handled elsewhere.
func (s *Scheduler) Sweep(ctx context.Context) (reservation.Result, error) {
	res, _, err := s.sweep(ctx)
	return res, err
}

func (s *Scheduler) sweep(ctx context.Context) (total reservation.Result, busy int, err error) {
	const op = "worker.Scheduler.Sweep"

	ids, err := s.rec.PendingMatches(ctx)
	if err != nil {
		return total, 0, fmt.Errorf("%s:%w", op, err)
	}

	var errs []error
	for _, id := range ids {
		res, err := s.reconcile(ctx, id)
		if err != nil {
			if errors.Is(err, reservation.ErrReconcileBusy) {
				busy++
				continue
			}
			errs = append(errs, err)
			continue
		}
		total.Confirmed = append(total.Confirmed, res.Confirmed...)
		total.Rejected = append(total.Rejected, res.Rejected...)
	}

	if len(errs) > 0 {
		return total, busy, fmt.Errorf("%s:%w", op, errors.Join(errs...))
	}

	return total, busy, nil
}

// Drain sweeps until a sweep finds nothing to do, waiting out matches held
// by another owner.
func (s *Scheduler) Drain(ctx context.Context) error {
	for {
		res, busy, err := s.sweep(ctx)
		if err != nil {
			return err
		}

		if res.Processed() > 0 {
			continue
		}
		if busy == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.interval):
		}
	}
}

func (s *Scheduler) reconcile(ctx context.Context, matchID int64) (reservation.Result, error) {
	res, err := s.rec.Reconcile(ctx, matchID)
	switch {
	case errors.Is(err, reservation.ErrReconcileBusy):
		s.logger.Debug("match busy, skipping", zap.Int64("match_id", matchID))
	case err != nil:
		s.logger.Warn("reconcile failed", zap.Int64("match_id", matchID), zap.Error(err))
	}
	return res, err
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	const op = "worker.Scheduler.Run"

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Warn("reconcile sweep failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	sched.Start()
	s.logger.Info("reconcile scheduler started", zap.Duration("interval", s.interval))

	g, gctx := errgroup.WithContext(ctx)
	if s.sub != nil {
		g.Go(func() error {
			err := s.sub.Subscribe(gctx, func(ctx context.Context, matchID int64) {
				_, _ = s.reconcile(ctx, matchID)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				// The periodic sweep keeps running without hints.
				s.logger.Warn("reconcile trigger subscription ended", zap.Error(err))
			}
			return nil
		})
	}

	<-ctx.Done()
	_ = g.Wait()

	if err := sched.Shutdown(); err != nil {
		s.logger.Warn("scheduler shutdown", zap.Error(err))
	}

	return nil
}
