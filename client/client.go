package client

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/dan-strohschein/sqlkit/driver"
)

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger used by the database and its pool.
func WithLogger(l Logger) Option {
	return func(d *Database) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithFactory overrides the backend factory chosen from the engine. Tests use
// it to plug in mock connections.
func WithFactory(f driver.Factory) Option {
	return func(d *Database) {
		d.factory = f
	}
}

// Database ties a configuration, a backend factory and a pool together.
type Database struct {
	cfg     Config
	factory driver.Factory
	pool    *Pool
	logger  Logger
}

// Open validates cfg, builds the pool for the configured engine and warms it
// up. A warmup failure closes the pool and is returned.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Database, error) {
	d := &Database{cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = NewLogger(cfg.LogLevel, nil)
	}

	if d.factory == nil {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		factory, err := cfg.Factory()
		if err != nil {
			return nil, err
		}
		d.factory = factory
	} else if err := cfg.Pool.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	pool, err := NewPool(d.factory, cfg.Pool, WithPoolLogger(d.logger))
	if err != nil {
		return nil, err
	}
	if err := pool.Warmup(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	d.pool = pool

	d.logger.Info("database opened",
		String("engine", string(cfg.Engine)),
		Int("pool_min", cfg.Pool.Min),
		Int("pool_max", cfg.Pool.Max))
	return d, nil
}

// Config returns the configuration the database was opened with.
func (d *Database) Config() Config { return d.cfg }

// Pool returns the underlying pool.
func (d *Database) Pool() *Pool { return d.pool }

// Logger returns the database logger.
func (d *Database) Logger() Logger { return d.logger }

// Begin starts a transaction on a pooled connection.
func (d *Database) Begin(ctx context.Context) (*Transaction, error) {
	return d.pool.Begin(ctx)
}

// InTransaction runs fn inside a transaction. It commits when fn returns nil
// and rolls back when fn returns an error or panics. Panics are re-raised.
func (d *Database) InTransaction(ctx context.Context, fn func(*Transaction) error) (err error) {
	tx, err := d.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			rollbackErr := tx.Rollback(ctx)
			d.logger.Warn("transaction rolled back due to panic",
				String("transaction_id", tx.ID()),
				Error("panic", fmt.Errorf("%v", r)),
				Error("rollback_error", rollbackErr),
				String("stack", string(debug.Stack())))
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			d.logger.Error("failed to rollback transaction after error",
				String("tx_id", tx.ID()),
				Error("original_error", err),
				Error("rollback_error", rollbackErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		tx.Close()
		return err
	}
	return nil
}

// WithConn acquires a connection, runs fn and releases it.
func (d *Database) WithConn(ctx context.Context, fn func(driver.Connection) error) error {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer d.pool.Release(conn)
	return fn(conn)
}

// Exec runs a statement for effect on a pooled connection.
func (d *Database) Exec(ctx context.Context, query string, args ...driver.Value) (int64, error) {
	var n int64
	err := d.WithConn(ctx, func(conn driver.Connection) error {
		var err error
		n, err = driver.ExecSQL(ctx, conn, query, args...)
		return err
	})
	return n, err
}

// QueryAll runs a query on a pooled connection and collects every row.
func (d *Database) QueryAll(ctx context.Context, query string, args ...driver.Value) ([]driver.Row, error) {
	var rows []driver.Row
	err := d.WithConn(ctx, func(conn driver.Connection) error {
		var err error
		rows, err = driver.QuerySQL(ctx, conn, query, args...)
		return err
	})
	return rows, err
}

// QueryOne returns the first row of the query or a NotFoundError.
func (d *Database) QueryOne(ctx context.Context, query string, args ...driver.Value) (driver.Row, error) {
	rows, err := d.QueryAll(ctx, query, args...)
	if err != nil {
		return driver.Row{}, err
	}
	if len(rows) == 0 {
		return driver.Row{}, newNotFound(query)
	}
	return rows[0], nil
}

// Close closes the pool.
func (d *Database) Close() error {
	d.logger.Info("database closing")
	return d.pool.Close()
}
