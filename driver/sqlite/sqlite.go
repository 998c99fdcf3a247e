// Package sqlite is the SQLite backend, built on the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dan-strohschein/sqlkit/driver"
	"github.com/dan-strohschein/sqlkit/driver/sqldb"
)

// DriverName is the database/sql name registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Config describes a SQLite database file.
type Config struct {
	// Path is the database file, or ":memory:".
	// Default: app.db
	Path string `json:"path"`

	// JournalMode is applied with PRAGMA journal_mode.
	// Default: WAL
	JournalMode string `json:"journal_mode"`

	// Synchronous is applied with PRAGMA synchronous.
	// Default: NORMAL
	Synchronous string `json:"synchronous"`

	// BusyTimeout sets PRAGMA busy_timeout. Zero leaves the engine default.
	BusyTimeout time.Duration `json:"busy_timeout"`

	// DisableForeignKeys skips PRAGMA foreign_keys = ON.
	DisableForeignKeys bool `json:"disable_foreign_keys"`

	// CacheSize bounds the per-connection prepared statement cache.
	CacheSize int `json:"cache_size"`
}

// DefaultConfig returns the settings used when fields are left empty.
func DefaultConfig() Config {
	return Config{
		Path:        "app.db",
		JournalMode: "WAL",
		Synchronous: "NORMAL",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("sqlite: path is required")
	}
	return nil
}

// Pragmas returns the statements run on every new connection.
func (c Config) Pragmas() []string {
	def := DefaultConfig()
	journal := c.JournalMode
	if journal == "" {
		journal = def.JournalMode
	}
	sync := c.Synchronous
	if sync == "" {
		sync = def.Synchronous
	}

	var pragmas []string
	if !c.DisableForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON")
	}
	pragmas = append(pragmas,
		fmt.Sprintf("PRAGMA journal_mode = %s", journal),
		fmt.Sprintf("PRAGMA synchronous = %s", sync),
	)
	if c.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", c.BusyTimeout.Milliseconds()))
	}
	return pragmas
}

// Open creates one connection to the database.
func Open(ctx context.Context, cfg Config) (*sqldb.Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open(DriverName, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}
	conn, err := sqldb.Open(ctx, db, sqldb.Options{
		Init:      cfg.Pragmas(),
		CacheSize: cfg.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
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
