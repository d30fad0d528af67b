package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kirinyoku/matchseats/internal/cassandra"
	"github.com/kirinyoku/matchseats/internal/domain"
	"github.com/kirinyoku/matchseats/internal/postgres"
	cassandrarepo "github.com/kirinyoku/matchseats/internal/repository/cassandra"
	"github.com/kirinyoku/matchseats/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/matchseats/internal/repository/postgres"
	"github.com/kirinyoku/matchseats/internal/seed"
	"github.com/kirinyoku/matchseats/internal/service/reservation"
)

type store interface {
	reservation.Store
	seed.Store
	seed.Resetter
}

// openStores returns one store per session slot. Only the cassandra backend
// opens more than one.
func (a *App) openStores(ctx context.Context) ([]store, error) {
	switch a.cfg.Store.Backend {
	case "cassandra":
		return a.openCassandra(ctx)
	case "postgres":
		return a.openPostgres(ctx)
	case "memory":
		a.logger.Info("using in-memory store")
		return []store{memory.NewStore()}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
}

func (a *App) openCassandra(ctx context.Context) ([]store, error) {
	const op = "app.openCassandra"

	c := a.cfg.Cassandra

	sel, err := cassandra.ParseSelector(c.EndpointSelection, a.cfg.Workload.RNGSeed, c.FixedEndpoint)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	read, err := cassandra.ParseConsistency(c.ReadConsistency)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	write, err := cassandra.ParseConsistency(c.Consistency)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	serial, err := cassandra.ParseSerialConsistency(c.SerialConsistency)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	cfg := cassandra.Config{
		ContactPoints:     c.ContactPoints,
		Port:              c.Port,
		Username:          c.Username,
		Password:          c.Password,
		Consistency:       c.Consistency,
		SerialConsistency: c.SerialConsistency,
		Timeout:           c.Timeout,
		ConnectTimeout:    c.ConnectTimeout,
		Retries:           c.Retries,
		RetryMinBackoff:   c.RetryMinBackoff,
		RetryMaxBackoff:   c.RetryMaxBackoff,
		Translations:      c.Translations,
		Selector:          sel,
	}

	stores := make([]store, 0, c.Sessions)
	for slot := 0; slot < c.Sessions; slot++ {
		session, err := cassandra.New(ctx, cfg, slot)
		if err != nil {
			return nil, fmt.Errorf("%s: slot %d: %w", op, slot, err)
		}
		a.closers = append(a.closers, func() error {
			session.Close()
			return nil
		})

		if slot == 0 && c.CreateSchema {
			if err := cassandrarepo.EnsureSchema(ctx, session, c.Keyspace, c.Replication); err != nil {
				return nil, fmt.Errorf("%s:%w", op, err)
			}
		}

		s, err := cassandrarepo.New(cassandrarepo.NewGateway(session, serial), cassandrarepo.Options{
			Keyspace: c.Keyspace,
			Read:     read,
			Write:    write,
		})
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		stores = append(stores, s)
	}

	a.logger.Info("cassandra sessions open",
		zap.Strings("contact_points", c.ContactPoints),
		zap.String("keyspace", c.Keyspace),
		zap.Int("sessions", c.Sessions),
	)

	return stores, nil
}

func (a *App) openPostgres(ctx context.Context) ([]store, error) {
	const op = "app.openPostgres"

	c := a.cfg.Postgres

	pool, err := postgres.New(ctx, postgres.Config{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Database: c.Name,
		SSLMode:  c.SSLMode,
		MaxConns: c.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})

	s := postgresrepo.NewStore(pool, postgresrepo.DefaultRetry())
	if c.CreateSchema {
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	a.logger.Info("postgres pool open", zap.String("host", c.Host), zap.String("db", c.Name))

	return []store{s}, nil
}

// serviceRing spreads worker calls over the services of every session slot.
type serviceRing struct {
	svcs []*reservation.Service
	next atomic.Uint64
}

func newServiceRing(svcs []*reservation.Service) *serviceRing {
	return &serviceRing{svcs: svcs}
}

func (r *serviceRing) pick() *reservation.Service {
	return r.svcs[(r.next.Add(1)-1)%uint64(len(r.svcs))]
}

func (r *serviceRing) first() *reservation.Service {
	return r.svcs[0]
}

func (r *serviceRing) DirectReserve(ctx context.Context, matchID, userID, seatID int64) (domain.Outcome, error) {
	return r.pick().DirectReserve(ctx, matchID, userID, seatID)
}

func (r *serviceRing) SubmitRequests(ctx context.Context, matchID, userID int64, seatIDs ...int64) error {
	return r.pick().SubmitRequests(ctx, matchID, userID, seatIDs...)
}
