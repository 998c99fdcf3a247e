// Package postgres is the PostgreSQL backend, built on pgx through its
// database/sql adapter.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/dan-strohschein/sqlkit/driver"
	"github.com/dan-strohschein/sqlkit/driver/sqldb"
)

// Config describes a PostgreSQL database.
type Config struct {
	// DSN is a libpq connection string or postgres:// URL.
	DSN string `json:"dsn"`

	// CacheSize bounds the per-connection prepared statement cache.
	CacheSize int `json:"cache_size"`
}

// Validate parses the DSN without connecting.
func (c Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("postgres: dsn is required")
	}
	if _, err := pgx.ParseConfig(c.DSN); err != nil {
		return fmt.Errorf("postgres: parse dsn: %w", err)
	}
	return nil
}

// Open creates one connection. Queries written with "?" placeholders are
// rewritten to the engine's "$n" form.
func Open(ctx context.Context, cfg Config) (*sqldb.Conn, error) {
	pc, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	conn, err := sqldb.Open(ctx, stdlib.OpenDB(*pc), sqldb.Options{
		Rebind:            sqldb.RebindDollar,
		LastInsertIDQuery: "SELECT lastval()",
		CacheSize:         cfg.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return conn, nil
}

// NewFactory returns a factory producing connections to cfg.
func NewFactory(cfg Config) (driver.Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return func(ctx context.Context) (driver.Connection, error) {
		return Open(ctx, cfg)
	}, nil
}
