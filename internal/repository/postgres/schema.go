package postgresrepo

import (
	"context"
)

// The two unique keys of confirmed_reservations are the seat and user
// invariants; an INSERT that violates either does nothing.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id   BIGINT PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id           BIGINT PRIMARY KEY,
		name         TEXT NOT NULL,
		scheduled_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sectors (
		id     BIGINT PRIMARY KEY,
		name   TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS seats (
		id        BIGINT NOT NULL,
		sector_id BIGINT NOT NULL,
		number    INT NOT NULL,
		active    BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (id, sector_id)
	)`,
	`CREATE TABLE IF NOT EXISTS reservation_requests (
		match_id     BIGINT NOT NULL,
		user_id      BIGINT NOT NULL,
		seat_id      BIGINT NOT NULL,
		requested_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (match_id, user_id, seat_id)
	)`,
	`CREATE TABLE IF NOT EXISTS confirmed_reservations (
		match_id     BIGINT NOT NULL,
		user_id      BIGINT NOT NULL,
		seat_id      BIGINT NOT NULL,
		confirmed_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (match_id, seat_id),
		UNIQUE (match_id, user_id)
	)`,
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	const op = "postgres.Store.EnsureSchema"

	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return wrapDBErr(op, err)
		}
	}

	return nil
}
