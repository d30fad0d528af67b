package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/matchseats/internal/config"
	"github.com/kirinyoku/matchseats/internal/pkg/metrics"
	"github.com/kirinyoku/matchseats/internal/queue"
	"github.com/kirinyoku/matchseats/internal/redis"
	"github.com/kirinyoku/matchseats/internal/repository/memory"
	redisrepo "github.com/kirinyoku/matchseats/internal/repository/redis"
	"github.com/kirinyoku/matchseats/internal/seed"
	"github.com/kirinyoku/matchseats/internal/service/reservation"
	httpgin "github.com/kirinyoku/matchseats/internal/transport/http/gin"
	"github.com/kirinyoku/matchseats/internal/worker"
)

type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	ring       *serviceRing
	pool       *worker.Pool
	sched      *worker.Scheduler
	httpServer *http.Server
	closers    []func() error
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	const op = "app.New"

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewWithRegistry(reg)

	stores, err := a.openStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if cfg.Workload.Reset {
		if err := seed.Reset(ctx, stores[0]); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		logger.Info("reservations cleared")
	}

	if cfg.Workload.Seed {
		plan := seed.Plan{
			Users:          cfg.Workload.Users,
			Sectors:        cfg.Workload.Sectors,
			SeatsPerSector: cfg.Workload.SeatsPerSector,
			Matches:        cfg.Workload.Matches,
			Start:          time.Now().UTC().Truncate(24 * time.Hour),
		}
		if err := seed.Run(ctx, stores[0], plan); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		logger.Info("dataset seeded",
			zap.Int("users", plan.Users),
			zap.Int("sectors", plan.Sectors),
			zap.Int("seats_per_sector", plan.SeatsPerSector),
			zap.Int("matches", plan.Matches),
		)
	}

	// One locker for every session, so the per-match guard spans the process
	// even without redis.
	var (
		locker  reservation.Locker = memory.NewLocker()
		trigger *redisrepo.PendingPubSub
		cache   *redisrepo.Cache
		limiter *redisrepo.Limiter
		opts    = []reservation.Option{reservation.WithMetrics(m), reservation.WithLogger(logger)}
	)

	if cfg.Redis.Enabled {
		rdb, err := redis.New(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		a.closers = append(a.closers, rdb.Close)

		locker = redisrepo.NewLocker(rdb)
		trigger = redisrepo.NewPendingPubSub(rdb)
		cache = redisrepo.NewCache(rdb, logger)
		limiter = redisrepo.NewLimiter(rdb, "reconcile", cfg.Reconciler.ManualLimit, cfg.Reconciler.ManualWindow)

		if cfg.Workload.Reset {
			for id := int64(1); id <= int64(cfg.Workload.Matches); id++ {
				if err := cache.InvalidateMatch(ctx, id); err != nil {
					logger.Warn("invalidate confirmed listing failed", zap.Int64("match_id", id), zap.Error(err))
				}
			}
		}

		opts = append(opts, reservation.WithTrigger(trigger), reservation.WithListener(cache))
		logger.Info("redis enabled", zap.String("addr", cfg.Redis.Addr))
	}
	opts = append(opts, reservation.WithLocker(locker))

	if cfg.AMQP.Enabled {
		pub, err := queue.Dial(cfg.AMQP.URL, cfg.AMQP.Queue, logger)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		a.closers = append(a.closers, pub.Close)

		opts = append(opts, reservation.WithListener(pub))
		logger.Info("confirmation events enabled", zap.String("queue", cfg.AMQP.Queue))
	}

	svcCfg := reservation.Config{
		LockTTL:     cfg.Reconciler.LockTTL,
		PassTimeout: cfg.Reconciler.PassTimeout,
	}
	services := make([]*reservation.Service, 0, len(stores))
	for _, s := range stores {
		services = append(services, reservation.New(s, svcCfg, opts...))
	}
	a.ring = newServiceRing(services)

	strategy, err := worker.ParseStrategy(cfg.Workload.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	a.pool = worker.NewPool(a.ring, worker.PoolConfig{
		Workers:    cfg.Workload.Workers,
		Iterations: cfg.Workload.Iterations,
		Seed:       cfg.Workload.RNGSeed,
		Strategy:   strategy,
		Space: worker.Space{
			Users:          cfg.Workload.Users,
			Seats:          cfg.Workload.Sectors * cfg.Workload.SeatsPerSector,
			Matches:        cfg.Workload.Matches,
			SeatsPerIntent: cfg.Workload.SeatsPerIntent,
		},
	}, logger)

	var sub worker.Subscriber
	if trigger != nil {
		sub = trigger
	}
	a.sched = worker.NewScheduler(services[0], sub, cfg.Reconciler.Interval, logger)

	if cfg.Server.Enabled {
		deps := httpgin.Deps{
			Service:  services[0],
			Cache:    cache,
			CacheTTL: cfg.Reconciler.ListingCacheTTL,
			Gatherer: reg,
			Stats:    a.pool.Stats,
			Logger:   logger,
		}
		if limiter != nil && cfg.Reconciler.ManualLimit > 0 {
			deps.Limiter = limiter
		}

		a.httpServer = &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:           httpgin.NewRouter(deps),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	if a.httpServer != nil {
		g.Go(func() error {
			a.logger.Info("ops server listening", zap.String("addr", a.httpServer.Addr))
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to start ops server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			a.logger.Info("shutting down ops server")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.httpServer.Shutdown(ctx)
		})
	}

	g.Go(func() error {
		return a.sched.Run(gCtx)
	})

	g.Go(func() error {
		if err := a.runWorkload(gCtx); err != nil {
			return err
		}
		if a.cfg.Workload.ExitWhenDone {
			cancel()
		}
		return nil
	})

	return g.Wait()
}

// runWorkload runs the pool and then reconciles until the intake is empty.
func (a *App) runWorkload(ctx context.Context) error {
	if err := a.pool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("workload: %w", err)
	}
	if ctx.Err() != nil {
		return nil
	}

	if err := a.sched.Drain(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("drain: %w", err)
	}

	total := 0
	for id := int64(1); id <= int64(a.cfg.Workload.Matches); id++ {
		rs, err := a.ring.first().ListConfirmed(ctx, id)
		if err != nil {
			a.logger.Warn("list confirmed failed", zap.Int64("match_id", id), zap.Error(err))
			continue
		}
		total += len(rs)
	}
	a.logger.Info("workload drained", zap.Int("confirmed_reservations", total))

	return nil
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
