package reservation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kirinyoku/matchseats/internal/domain"
	"github.com/kirinyoku/matchseats/internal/pkg/metrics"
	"github.com/kirinyoku/matchseats/internal/repository"
	"github.com/kirinyoku/matchseats/internal/repository/memory"
)

const (
	strategyDirect = "direct"
	strategyQueued = "queued"
)

// Store is the statement-level surface the reservation core needs. ClaimSeat
// must be a compare-and-insert over both uniqueness keys, (match, seat) and
// (match, user), and return repository.ErrConflict when either is taken.
type Store interface {
	ConfirmedBySeat(ctx context.Context, matchID, seatID int64) (domain.ConfirmedReservation, bool, error)
	ConfirmedByUser(ctx context.Context, matchID, userID int64) (domain.ConfirmedReservation, bool, error)
	ListConfirmed(ctx context.Context, matchID int64) ([]domain.ConfirmedReservation, error)
	ClaimSeat(ctx context.Context, r domain.ConfirmedReservation) error

	AppendRequest(ctx context.Context, r domain.ReservationRequest) error
	ListRequests(ctx context.Context, matchID int64) ([]domain.ReservationRequest, error)
	DeleteRequest(ctx context.Context, r domain.ReservationRequest) error
	PendingMatches(ctx context.Context) ([]int64, error)
}

// Locker grants the single-writer lease a reconciliation pass runs under.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (repository.Lease, error)
}

// Trigger announces that a match has pending requests.
type Trigger interface {
	PublishPending(ctx context.Context, matchID int64) error
}

// Listener is told about confirmations after they are committed.
type Listener interface {
	Confirmed(ctx context.Context, matchID int64, rs []domain.ConfirmedReservation)
}

type Config struct {
	LockTTL time.Duration
	// PassTimeout bounds one reconciliation pass. Zero means no bound beyond
	// the store's own timeouts.
	PassTimeout time.Duration
	Clock       func() time.Time
}

type Service struct {
	store     Store
	locker    Locker
	trigger   Trigger
	listeners []Listener
	metrics   *metrics.Metrics
	logger    *zap.Logger
	cfg       Config
	passes    singleflight.Group
}

type Option func(*Service)

func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithTrigger(t Trigger) Option {
	return func(s *Service) { s.trigger = t }
}

func WithListener(l Listener) Option {
	return func(s *Service) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New builds the service. Without WithLocker the reconciler falls back to a
// process-local lease, which is only sufficient when a single process
// reconciles.
func New(store Store, cfg Config, opts ...Option) *Service {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	s := &Service{
		store:  store,
		logger: zap.NewNop(),
		cfg:    cfg,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.locker == nil {
		s.locker = memory.NewLocker()
	}

	return s
}

// SubmitRequest appends a reservation intent to the intake. No conflict
// checks happen here; the reconciler resolves them later.
func (s *Service) SubmitRequest(ctx context.Context, matchID, userID, seatID int64) error {
	return s.SubmitRequests(ctx, matchID, userID, seatID)
}

// SubmitRequests appends one intake row per seat. It stops at the first store
// failure; rows appended before it stay pending.
func (s *Service) SubmitRequests(ctx context.Context, matchID, userID int64, seatIDs ...int64) error {
	const op = "service.reservation.SubmitRequests"

	if err := validateIDs(matchID, userID, seatIDs...); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	for _, seatID := range seatIDs {
		err := s.store.AppendRequest(ctx, domain.ReservationRequest{
			MatchID:     matchID,
			UserID:      userID,
			SeatID:      seatID,
			RequestedAt: s.cfg.Clock(),
		})
		s.metrics.ObserveSubmit(err)
		if err != nil {
			return storeErr(op, err)
		}
	}

	if s.trigger != nil {
		if err := s.trigger.PublishPending(ctx, matchID); err != nil {
			s.logger.Warn("publish reconcile trigger failed",
				zap.Int64("match_id", matchID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// ListConfirmed returns the confirmed reservations of a match ordered by seat.
func (s *Service) ListConfirmed(ctx context.Context, matchID int64) ([]domain.ConfirmedReservation, error) {
	const op = "service.reservation.ListConfirmed"

	out, err := s.store.ListConfirmed(ctx, matchID)
	if err != nil {
		return nil, storeErr(op, err)
	}

	return out, nil
}

// PendingMatches lists matches that currently have intake rows.
func (s *Service) PendingMatches(ctx context.Context) ([]int64, error) {
	const op = "service.reservation.PendingMatches"

	ids, err := s.store.PendingMatches(ctx)
	if err != nil {
		return nil, storeErr(op, err)
	}

	return ids, nil
}

func (s *Service) notify(ctx context.Context, matchID int64, rs []domain.ConfirmedReservation) {
	if len(rs) == 0 {
		return
	}
	for _, l := range s.listeners {
		l.Confirmed(ctx, matchID, rs)
	}
}
