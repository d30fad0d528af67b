package cassandrarepo

import (
	"context"

	"github.com/kirinyoku/matchseats/internal/domain"
)

func (s *Store) UpsertUsers(ctx context.Context, users []domain.User) error {
	for _, u := range users {
		if err := s.gw.ExecuteWrite(ctx, s.stmt.upsertUser, u.ID, u.Name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpsertSectors(ctx context.Context, sectors []domain.Sector) error {
	for _, sec := range sectors {
		if err := s.gw.ExecuteWrite(ctx, s.stmt.upsertSector, sec.ID, sec.Name, sec.Active); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpsertSeats(ctx context.Context, seats []domain.Seat) error {
	for _, st := range seats {
		if err := s.gw.ExecuteWrite(ctx, s.stmt.upsertSeat, st.ID, st.SectorID, st.Number, st.Active); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpsertMatches(ctx context.Context, matches []domain.Match) error {
	for _, m := range matches {
		if err := s.gw.ExecuteWrite(ctx, s.stmt.upsertMatch, m.ID, m.Name, m.ScheduledAt); err != nil {
			return err
		}
	}
	return nil
}

// Reset truncates the intake and confirmed reservation tables.
func (s *Store) Reset(ctx context.Context) error {
	for _, st := range []Statement{s.stmt.truncateRequests, s.stmt.truncateConfirmed} {
		if err := s.gw.ExecuteWrite(ctx, st); err != nil {
			return err
		}
	}
	return nil
}
