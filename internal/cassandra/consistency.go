package cassandra

import (
	"fmt"
	"strings"

	"github.com/gocql/gocql"
)

// ParseConsistency accepts driver names such as QUORUM or local_one. Empty
// means QUORUM.
func ParseConsistency(s string) (gocql.Consistency, error) {
	if strings.TrimSpace(s) == "" {
		return gocql.Quorum, nil
	}
	return gocql.ParseConsistencyWrapper(strings.ToUpper(strings.TrimSpace(s)))
}

// ParseSerialConsistency accepts SERIAL or LOCAL_SERIAL. Empty means SERIAL.
func ParseSerialConsistency(s string) (gocql.SerialConsistency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "SERIAL":
		return gocql.Serial, nil
	case "LOCAL_SERIAL":
		return gocql.LocalSerial, nil
	default:
		return 0, fmt.Errorf("invalid serial consistency %q", s)
	}
}

// Replicas reports how many replicas must acknowledge an operation at c
// for a keyspace with replication factor rf.
func Replicas(c gocql.Consistency, rf int) int {
	switch c {
	case gocql.Any:
		return 0
	case gocql.One, gocql.LocalOne:
		return 1
	case gocql.Two:
		return 2
	case gocql.Three:
		return 3
	case gocql.Quorum, gocql.LocalQuorum, gocql.EachQuorum:
		return rf/2 + 1
	case gocql.All:
		return rf
	default:
		return 0
	}
}

// Overlapping reports whether every read at read meets at least one replica
// that acknowledged a write at write.
func Overlapping(read, write gocql.Consistency, rf int) bool {
	return Replicas(read, rf)+Replicas(write, rf) > rf
}
