// Package seed creates the static data a workload runs against: users,
// sectors, seats and matches. Every seed write is an upsert, so seeding twice
// is harmless. Reset clears what an earlier run reserved.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/kirinyoku/matchseats/internal/domain"
)

type Store interface {
	UpsertUsers(ctx context.Context, users []domain.User) error
	UpsertSectors(ctx context.Context, sectors []domain.Sector) error
	UpsertSeats(ctx context.Context, seats []domain.Seat) error
	UpsertMatches(ctx context.Context, matches []domain.Match) error
}

// Resetter clears reservations left by an earlier run.
type Resetter interface {
	Reset(ctx context.Context) error
}

type Plan struct {
	Users          int
	Sectors        int
	SeatsPerSector int
	Matches        int
	Start          time.Time
}

// DefaultPlan is 10 users, 4 sectors of 15 seats and 10 daily matches
// starting at start.
func DefaultPlan(start time.Time) Plan {
	return Plan{
		Users:          10,
		Sectors:        4,
		SeatsPerSector: 15,
		Matches:        10,
		Start:          start,
	}
}

type Dataset struct {
	Users   []domain.User
	Sectors []domain.Sector
	Seats   []domain.Seat
	Matches []domain.Match
}

// Build derives the dataset from the plan. Seat ids run 1..Sectors*SeatsPerSector
// and fill sectors in order.
func Build(p Plan) Dataset {
	var d Dataset

	for id := 1; id <= p.Users; id++ {
		d.Users = append(d.Users, domain.User{
			ID:   int64(id),
			Name: fmt.Sprintf("user-%d", id),
		})
	}

	for id := 1; id <= p.Sectors; id++ {
		d.Sectors = append(d.Sectors, domain.Sector{
			ID:     int64(id),
			Name:   fmt.Sprintf("sector-%d", id),
			Active: true,
		})
	}

	for id := 1; id <= p.Sectors*p.SeatsPerSector; id++ {
		d.Seats = append(d.Seats, domain.Seat{
			ID:       int64(id),
			SectorID: int64((id-1)/p.SeatsPerSector + 1),
			Number:   (id-1)%p.SeatsPerSector + 1,
			Active:   true,
		})
	}

	for id := 1; id <= p.Matches; id++ {
		d.Matches = append(d.Matches, domain.Match{
			ID:          int64(id),
			Name:        fmt.Sprintf("match-%d", id),
			ScheduledAt: p.Start.AddDate(0, 0, id-1),
		})
	}

	return d
}

func Run(ctx context.Context, s Store, p Plan) error {
	const op = "seed.Run"

	if p.Users <= 0 || p.Sectors <= 0 || p.SeatsPerSector <= 0 || p.Matches <= 0 {
		return fmt.Errorf("%s: empty plan %+v", op, p)
	}

	d := Build(p)

	if err := s.UpsertUsers(ctx, d.Users); err != nil {
		return fmt.Errorf("%s: users: %w", op, err)
	}
	if err := s.UpsertSectors(ctx, d.Sectors); err != nil {
		return fmt.Errorf("%s: sectors: %w", op, err)
	}
	if err := s.UpsertSeats(ctx, d.Seats); err != nil {
		return fmt.Errorf("%s: seats: %w", op, err)
	}
	if err := s.UpsertMatches(ctx, d.Matches); err != nil {
		return fmt.Errorf("%s: matches: %w", op, err)
	}

	return nil
}

// Reset clears intake entries and confirmed reservations. The static data
// is left in place for Run to upsert over.
func Reset(ctx context.Context, r Resetter) error {
	const op = "seed.Reset"

	if err := r.Reset(ctx); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
