package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds the pool settings of the PostgreSQL store. Zero values
// take the defaults below.
type Config struct {
	// DSN, e.g. "postgres://byok:secret@db:5432/byok?sslmode=require".
	DSN string

	MaxConns int32 // default 25
	MinConns int32 // default 2

	MaxConnLifetime   time.Duration // default 5m
	MaxConnIdleTime   time.Duration // default 2m
	HealthCheckPeriod time.Duration // default 30s

	// ConnectTimeout bounds the initial ping. Default 10s.
	ConnectTimeout time.Duration

	// MigrateOnStart applies pending schema migrations in New.
	MigrateOnStart bool
}

func (c *Config) defaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 5 * time.Minute
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 2 * time.Minute
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// poolConfig parses the DSN and applies the pool limits.
func (c Config) poolConfig() (*pgxpool.Config, error) {
	if c.DSN == "" {
		return nil, fmt.Errorf("postgres: DSN is required")
	}
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	pc.MaxConns = c.MaxConns
	pc.MinConns = c.MinConns
	pc.MaxConnLifetime = c.MaxConnLifetime
	pc.MaxConnIdleTime = c.MaxConnIdleTime
	pc.HealthCheckPeriod = c.HealthCheckPeriod
	return pc, nil
}
