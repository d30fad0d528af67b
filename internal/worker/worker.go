// Package worker drives the reservation workload: a pool of independent
// workers generating intents, and a scheduler that reconciles the intake.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/matchseats/internal/domain"
)

type Strategy string

const (
	StrategyDirect Strategy = "direct"
	StrategyQueued Strategy = "queued"
	// StrategyMixed picks direct or queued per intent.
	StrategyMixed Strategy = "mixed"
)

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyDirect, StrategyQueued, StrategyMixed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// Reserver is the reservation core as seen by a worker.
type Reserver interface {
	DirectReserve(ctx context.Context, matchID, userID, seatID int64) (domain.Outcome, error)
	SubmitRequests(ctx context.Context, matchID, userID int64, seatIDs ...int64) error
}

// Intent is one user asking for one or more seats of a match.
type Intent struct {
	MatchID int64
	UserID  int64
	SeatIDs []int64
}

// Space bounds generated ids; all of them start at 1.
type Space struct {
	Users          int
	Seats          int
	Matches        int
	SeatsPerIntent int
}

// Generator produces a reproducible stream of intents.
type Generator struct {
	rng   *rand.Rand
	space Space
}

func NewGenerator(seed uint64, index int, space Space) *Generator {
	if space.SeatsPerIntent < 1 {
		space.SeatsPerIntent = 1
	}
	if space.SeatsPerIntent > space.Seats {
		space.SeatsPerIntent = space.Seats
	}
	return &Generator{
		rng:   rand.New(rand.NewPCG(seed, uint64(index))),
		space: space,
	}
}

// Next returns an intent with distinct seats.
func (g *Generator) Next() Intent {
	in := Intent{
		MatchID: int64(1 + g.rng.IntN(g.space.Matches)),
		UserID:  int64(1 + g.rng.IntN(g.space.Users)),
	}

	k := 1 + g.rng.IntN(g.space.SeatsPerIntent)
	for _, p := range g.rng.Perm(g.space.Seats)[:k] {
		in.SeatIDs = append(in.SeatIDs, int64(p+1))
	}

	return in
}

func (g *Generator) pickDirect() bool {
	return g.rng.IntN(2) == 0
}

// Stats is a snapshot of what a pool has done.
type Stats struct {
	Intents   int64
	Confirmed int64
	Rejected  int64
	Submitted int64
	Errors    int64
}

type counters struct {
	intents, confirmed, rejected, submitted, errors atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Intents:   c.intents.Load(),
		Confirmed: c.confirmed.Load(),
		Rejected:  c.rejected.Load(),
		Submitted: c.submitted.Load(),
		Errors:    c.errors.Load(),
	}
}

// Worker handles its own intents with no knowledge of other workers.
// Rejections are final; store failures are logged and the intent dropped.
type Worker struct {
	ID         string
	svc        Reserver
	gen        *Generator
	strategy   Strategy
	iterations int
	stats      *counters
	logger     *zap.Logger
}

func (w *Worker) Run(ctx context.Context) error {
	for i := 0; w.iterations <= 0 || i < w.iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		in := w.gen.Next()
		w.stats.intents.Add(1)

		strategy := w.strategy
		if strategy == StrategyMixed {
			strategy = StrategyQueued
			if w.gen.pickDirect() {
				strategy = StrategyDirect
			}
		}

		var err error
		if strategy == StrategyDirect {
			err = w.direct(ctx, in)
		} else {
			err = w.queued(ctx, in)
		}

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.stats.errors.Add(1)
			w.logger.Warn("intent failed",
				zap.String("worker", w.ID),
				zap.String("strategy", string(strategy)),
				zap.Int64("match_id", in.MatchID),
				zap.Int64("user_id", in.UserID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// direct tries the seats in order and stops at the first confirmation, since
// a user holds at most one seat per match.
func (w *Worker) direct(ctx context.Context, in Intent) error {
	for _, seatID := range in.SeatIDs {
		out, err := w.svc.DirectReserve(ctx, in.MatchID, in.UserID, seatID)
		if err != nil {
			return err
		}

		if out.IsConfirmed() {
			w.stats.confirmed.Add(1)
			w.logger.Debug("seat confirmed",
				zap.String("worker", w.ID),
				zap.Int64("match_id", in.MatchID),
				zap.Int64("user_id", in.UserID),
				zap.Int64("seat_id", seatID),
			)
			return nil
		}

		w.stats.rejected.Add(1)
		if out.Reason == domain.ReasonUserAlreadySeated {
			return nil
		}
	}

	return nil
}

func (w *Worker) queued(ctx context.Context, in Intent) error {
	if err := w.svc.SubmitRequests(ctx, in.MatchID, in.UserID, in.SeatIDs...); err != nil {
		return err
	}
	w.stats.submitted.Add(int64(len(in.SeatIDs)))
	return nil
}

type PoolConfig struct {
	Workers    int
	Iterations int
	Seed       uint64
	Strategy   Strategy
	Space      Space
}

// Pool runs workers concurrently. Each worker owns its generator, so no state
// is shared between them beyond the service.
type Pool struct {
	workers []*Worker
	stats   *counters
	logger  *zap.Logger
}

func NewPool(svc Reserver, cfg PoolConfig, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{stats: &counters{}, logger: logger}
	for i := 0; i < cfg.Workers; i++ {
		p.workers = append(p.workers, &Worker{
			ID:         uuid.NewString(),
			svc:        svc,
			gen:        NewGenerator(cfg.Seed, i, cfg.Space),
			strategy:   cfg.Strategy,
			iterations: cfg.Iterations,
			stats:      p.stats,
			logger:     logger,
		})
	}

	return p
}

// Run blocks until every worker finished its iterations or ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool started", zap.Int("workers", len(p.workers)))

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	err := g.Wait()

	st := p.Stats()
	p.logger.Info("worker pool finished",
		zap.Int64("intents", st.Intents),
		zap.Int64("confirmed", st.Confirmed),
		zap.Int64("rejected", st.Rejected),
		zap.Int64("submitted", st.Submitted),
		zap.Int64("errors", st.Errors),
	)

	return err
}

func (p *Pool) Stats() Stats {
	return p.stats.snapshot()
}
