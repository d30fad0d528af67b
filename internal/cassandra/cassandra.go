package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

type Config struct {
	ContactPoints []string
	Port          int
	Username      string
	Password      string

	Consistency       string
	SerialConsistency string

	Timeout        time.Duration
	ConnectTimeout time.Duration

	Retries         int
	RetryMinBackoff time.Duration
	RetryMaxBackoff time.Duration

	// Translations maps broadcast addresses to reachable host:port pairs.
	Translations map[string]string
	// Selector picks the contact point of a session slot.
	Selector Selector
}

// NewCluster builds the driver configuration for one session slot. The
// session is opened without a keyspace; statements name their tables fully.
func NewCluster(cfg Config, slot int) (*gocql.ClusterConfig, error) {
	const op = "cassandra.NewCluster"

	if len(cfg.ContactPoints) == 0 {
		return nil, fmt.Errorf("%s: no contact points", op)
	}

	sel := cfg.Selector
	if sel == nil {
		sel = RoundRobin
	}

	cons, err := ParseConsistency(cfg.Consistency)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	serial, err := ParseSerialConsistency(cfg.SerialConsistency)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	translator, err := NewTranslator(cfg.Translations)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	cluster := gocql.NewCluster(sel(cfg.ContactPoints, slot))
	if cfg.Port > 0 {
		cluster.Port = cfg.Port
	}
	cluster.Consistency = cons
	cluster.SerialConsistency = serial
	cluster.AddressTranslator = translator

	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	if cfg.ConnectTimeout > 0 {
		cluster.ConnectTimeout = cfg.ConnectTimeout
	}

	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	// Only statements marked idempotent are retried by the driver.
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: cfg.Retries,
		Min:        cfg.RetryMinBackoff,
		Max:        cfg.RetryMaxBackoff,
	}

	return cluster, nil
}

func New(ctx context.Context, cfg Config, slot int) (*gocql.Session, error) {
	const op = "cassandra.New"

	cluster, err := NewCluster(cfg, slot)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	ctxPing, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := session.Query("SELECT release_version FROM system.local").WithContext(ctxPing).Exec(); err != nil {
		session.Close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return session, nil
}
