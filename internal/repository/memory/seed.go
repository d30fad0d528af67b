package memory

import (
	"context"

	"github.com/kirinyoku/matchseats/internal/domain"
)

func (s *Store) UpsertUsers(ctx context.Context, users []domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range users {
		s.users[u.ID] = u
	}

	return nil
}

func (s *Store) UpsertSectors(ctx context.Context, sectors []domain.Sector) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sec := range sectors {
		s.sectors[sec.ID] = sec
	}

	return nil
}

func (s *Store) UpsertSeats(ctx context.Context, seats []domain.Seat) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range seats {
		s.seats[st.ID] = st
	}

	return nil
}

func (s *Store) UpsertMatches(ctx context.Context, matches []domain.Match) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range matches {
		s.matches[m.ID] = m
	}

	return nil
}

// Counts reports how many users, sectors, seats and matches are stored.
func (s *Store) Counts() (users, sectors, seats, matches int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.users), len(s.sectors), len(s.seats), len(s.matches)
}

// Reset drops every intake entry and confirmed reservation. Seeded users,
// sectors, seats and matches stay.
func (s *Store) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.requests)
	clear(s.bySeat)
	clear(s.byUser)
	s.writes.Add(1)

	return nil
}
