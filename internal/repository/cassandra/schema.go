package cassandrarepo

import (
	"context"
	"fmt"
	"regexp"

	"github.com/gocql/gocql"
)

var identRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

// ValidKeyspace reports whether name can be embedded in CQL unquoted.
func ValidKeyspace(name string) bool {
	return identRe.MatchString(name)
}

const (
	tableUsers     = "users"
	tableMatches   = "matches"
	tableSectors   = "sectors"
	tableSeats     = "seats"
	tableRequests  = "reservation_requests"
	tableConfirmed = "confirmed_reservations"
)

// confirmed_reservations keeps two claim rows per confirmation in the match
// partition, one keyed by seat and one by user, so a single conditional
// batch can claim both keys.
var tableDDL = []string{
	`CREATE TABLE IF NOT EXISTS %s.users (
		id bigint PRIMARY KEY,
		name text
	)`,
	`CREATE TABLE IF NOT EXISTS %s.matches (
		id bigint PRIMARY KEY,
		name text,
		scheduled_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS %s.sectors (
		id bigint PRIMARY KEY,
		name text,
		active boolean
	)`,
	`CREATE TABLE IF NOT EXISTS %s.seats (
		id bigint,
		sector_id bigint,
		number int,
		active boolean,
		PRIMARY KEY (id, sector_id)
	)`,
	`CREATE TABLE IF NOT EXISTS %s.reservation_requests (
		match_id bigint,
		user_id bigint,
		seat_id bigint,
		requested_at timestamp,
		PRIMARY KEY ((match_id), user_id, seat_id)
	)`,
	`CREATE TABLE IF NOT EXISTS %s.confirmed_reservations (
		match_id bigint,
		claim_kind text,
		claim_id bigint,
		user_id bigint,
		seat_id bigint,
		confirmed_at timestamp,
		PRIMARY KEY ((match_id), claim_kind, claim_id)
	)`,
}

// EnsureSchema creates the keyspace and tables when missing.
func EnsureSchema(ctx context.Context, session *gocql.Session, keyspace string, replication int) error {
	const op = "cassandrarepo.EnsureSchema"

	if !ValidKeyspace(keyspace) {
		return fmt.Errorf("%s: invalid keyspace %q", op, keyspace)
	}
	if replication <= 0 {
		replication = 3
	}

	stmts := make([]string, 0, len(tableDDL)+1)
	stmts = append(stmts, fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}`,
		keyspace, replication,
	))
	for _, ddl := range tableDDL {
		stmts = append(stmts, fmt.Sprintf(ddl, keyspace))
	}

	for _, stmt := range stmts {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return wrapErr(op, err)
		}
	}

	return nil
}
