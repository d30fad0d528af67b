package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/matchseats/internal/domain"
)

// sendBatch queues one statement per row and applies them in one
// transaction.
func (s *Store) sendBatch(ctx context.Context, op string, queue func(b *pgx.Batch)) error {
	b := &pgx.Batch{}
	queue(b)

	err := s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		return tx.SendBatch(ctx, b).Close()
	})

	return wrapDBErr(op, err)
}

func (s *Store) UpsertUsers(ctx context.Context, users []domain.User) error {
	return s.sendBatch(ctx, "postgres.Store.UpsertUsers", func(b *pgx.Batch) {
		for _, u := range users {
			b.Queue(`INSERT INTO users (id, name) VALUES ($1, $2)
				 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
				u.ID, u.Name)
		}
	})
}

func (s *Store) UpsertSectors(ctx context.Context, sectors []domain.Sector) error {
	return s.sendBatch(ctx, "postgres.Store.UpsertSectors", func(b *pgx.Batch) {
		for _, sec := range sectors {
			b.Queue(`INSERT INTO sectors (id, name, active) VALUES ($1, $2, $3)
				 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active`,
				sec.ID, sec.Name, sec.Active)
		}
	})
}

func (s *Store) UpsertSeats(ctx context.Context, seats []domain.Seat) error {
	return s.sendBatch(ctx, "postgres.Store.UpsertSeats", func(b *pgx.Batch) {
		for _, st := range seats {
			b.Queue(`INSERT INTO seats (id, sector_id, number, active) VALUES ($1, $2, $3, $4)
				 ON CONFLICT (id, sector_id) DO UPDATE SET number = EXCLUDED.number, active = EXCLUDED.active`,
				st.ID, st.SectorID, st.Number, st.Active)
		}
	})
}

func (s *Store) UpsertMatches(ctx context.Context, matches []domain.Match) error {
	return s.sendBatch(ctx, "postgres.Store.UpsertMatches", func(b *pgx.Batch) {
		for _, m := range matches {
			b.Queue(`INSERT INTO matches (id, name, scheduled_at) VALUES ($1, $2, $3)
				 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, scheduled_at = EXCLUDED.scheduled_at`,
				m.ID, m.Name, m.ScheduledAt)
		}
	})
}

// Reset truncates the intake and confirmed reservation tables.
func (s *Store) Reset(ctx context.Context) error {
	const op = "postgres.Store.Reset"

	_, err := s.db.Exec(ctx, `TRUNCATE reservation_requests, confirmed_reservations`)
	return wrapDBErr(op, err)
}
