// Package cassandrarepo stores reservations in a replicated Cassandra
// keyspace. It relies on per-row writes and single-partition lightweight
// transactions only.
package cassandrarepo

import (
	"fmt"

	"github.com/gocql/gocql"
)

type Options struct {
	Keyspace string
	// Read applies to existence checks and listings, Write to intake rows and
	// seed data. Conditional claims run at Write with the gateway's serial
	// consistency.
	Read  gocql.Consistency
	Write gocql.Consistency
}

type statements struct {
	confirmedBySeat Statement
	confirmedByUser Statement
	listConfirmed   Statement
	claim           Statement

	appendRequest  Statement
	listRequests   Statement
	deleteRequest  Statement
	pendingMatches Statement

	truncateRequests  Statement
	truncateConfirmed Statement

	upsertUser   Statement
	upsertSector Statement
	upsertSeat   Statement
	upsertMatch  Statement
}

// Store implements the reservation and seed stores. Its statements are built
// once per instance and never mutated.
type Store struct {
	gw    *Gateway
	write gocql.Consistency
	stmt  statements
}

func New(gw *Gateway, opts Options) (*Store, error) {
	const op = "cassandrarepo.New"

	if !ValidKeyspace(opts.Keyspace) {
		return nil, fmt.Errorf("%s: invalid keyspace %q", op, opts.Keyspace)
	}

	return &Store{
		gw:    gw,
		write: opts.Write,
		stmt:  buildStatements(opts),
	}, nil
}

func buildStatements(opts Options) statements {
	t := func(name string) string { return opts.Keyspace + "." + name }

	read := func(cql string) Statement {
		return Statement{CQL: cql, Consistency: opts.Read, Idempotent: true}
	}
	write := func(cql string) Statement {
		return Statement{CQL: cql, Consistency: opts.Write, Idempotent: true}
	}

	return statements{
		confirmedBySeat: read(`SELECT user_id, seat_id, confirmed_at FROM ` + t(tableConfirmed) +
			` WHERE match_id = ? AND claim_kind = 'seat' AND claim_id = ?`),
		confirmedByUser: read(`SELECT user_id, seat_id, confirmed_at FROM ` + t(tableConfirmed) +
			` WHERE match_id = ? AND claim_kind = 'user' AND claim_id = ?`),
		listConfirmed: read(`SELECT user_id, seat_id, confirmed_at FROM ` + t(tableConfirmed) +
			` WHERE match_id = ? AND claim_kind = 'seat'`),
		// Lightweight transactions are never retried blindly.
		claim: Statement{
			CQL: `INSERT INTO ` + t(tableConfirmed) +
				` (match_id, claim_kind, claim_id, user_id, seat_id, confirmed_at) VALUES (?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
			Consistency: opts.Write,
		},

		appendRequest: write(`INSERT INTO ` + t(tableRequests) +
			` (match_id, user_id, seat_id, requested_at) VALUES (?, ?, ?, ?)`),
		listRequests: read(`SELECT user_id, seat_id, requested_at FROM ` + t(tableRequests) +
			` WHERE match_id = ?`),
		deleteRequest: write(`DELETE FROM ` + t(tableRequests) +
			` WHERE match_id = ? AND user_id = ? AND seat_id = ?`),
		pendingMatches: read(`SELECT DISTINCT match_id FROM ` + t(tableRequests)),

		truncateRequests:  write(`TRUNCATE ` + t(tableRequests)),
		truncateConfirmed: write(`TRUNCATE ` + t(tableConfirmed)),

		upsertUser:   write(`INSERT INTO ` + t(tableUsers) + ` (id, name) VALUES (?, ?)`),
		upsertSector: write(`INSERT INTO ` + t(tableSectors) + ` (id, name, active) VALUES (?, ?, ?)`),
		upsertSeat:   write(`INSERT INTO ` + t(tableSeats) + ` (id, sector_id, number, active) VALUES (?, ?, ?, ?)`),
		upsertMatch:  write(`INSERT INTO ` + t(tableMatches) + ` (id, name, scheduled_at) VALUES (?, ?, ?)`),
	}
}
