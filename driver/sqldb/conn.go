// Package sqldb adapts a database/sql handle to the driver contract. Each
// Conn pins exactly one physical session so that Begin, Commit and
// LastInsertID refer to the same server-side connection.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dan-strohschein/sqlkit/driver"
)

// DefaultCacheSize is the prepared statement cache size used when Options
// leaves it unset.
const DefaultCacheSize = 32

// Options tunes a Conn for a specific engine.
type Options struct {
	// Init statements run once right after the session is opened.
	Init []string

	// Rebind rewrites query placeholders before preparing. Nil keeps "?".
	Rebind func(query string) string

	// LastInsertIDQuery is used by LastInsertID when the engine does not
	// report generated keys on exec results. Empty means use exec results.
	LastInsertIDQuery string

	// CacheSize bounds the prepared statement cache. Negative disables it.
	CacheSize int
}

// Conn is a single pinned session implementing driver.Connection.
type Conn struct {
	db     *sql.DB
	conn   *sql.Conn
	tx     *sql.Tx
	cache  *StatementCache
	opts   Options
	lastID int64
	closed bool
}

// Open pins one session from db. The Conn owns db and closes it on Close.
func Open(ctx context.Context, db *sql.DB, opts Options) (*Conn, error) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}

	for _, stmt := range opts.Init {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			db.Close()
			return nil, fmt.Errorf("init %q: %w", stmt, err)
		}
	}

	size := opts.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}

	return &Conn{
		db:    db,
		conn:  conn,
		cache: NewStatementCache(size),
		opts:  opts,
	}, nil
}

// Prepare implements driver.Connection.
func (c *Conn) Prepare(ctx context.Context, query string) (driver.Statement, error) {
	if c.closed {
		return nil, driver.ErrClosed
	}
	if c.opts.Rebind != nil {
		query = c.opts.Rebind(query)
	}

	if cached, ok := c.cache.Get(query); ok {
		if c.tx != nil {
			return &Statement{conn: c, stmt: c.tx.StmtContext(ctx, cached), owned: true}, nil
		}
		return &Statement{conn: c, stmt: cached}, nil
	}

	if c.tx != nil {
		stmt, err := c.tx.PrepareContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("prepare: %w", err)
		}
		return &Statement{conn: c, stmt: stmt, owned: true}, nil
	}

	stmt, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	if !c.cache.Add(query, stmt) {
		return &Statement{conn: c, stmt: stmt, owned: true}, nil
	}
	return &Statement{conn: c, stmt: stmt}, nil
}

// Begin implements driver.Connection.
func (c *Conn) Begin(ctx context.Context) error {
	if c.closed {
		return driver.ErrClosed
	}
	if c.tx != nil {
		return driver.ErrTransactionInProgress
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

// Commit implements driver.Connection.
func (c *Conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return driver.ErrNoTransaction
	}
	tx := c.tx
	c.tx = nil
	return tx.Commit()
}

// Rollback implements driver.Connection.
func (c *Conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return driver.ErrNoTransaction
	}
	tx := c.tx
	c.tx = nil
	return tx.Rollback()
}

// LastInsertID implements driver.Connection.
func (c *Conn) LastInsertID(ctx context.Context) (int64, error) {
	if c.opts.LastInsertIDQuery == "" {
		return c.lastID, nil
	}
	var row *sql.Row
	if c.tx != nil {
		row = c.tx.QueryRowContext(ctx, c.opts.LastInsertIDQuery)
	} else {
		row = c.conn.QueryRowContext(ctx, c.opts.LastInsertIDQuery)
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Ping implements driver.Connection.
func (c *Conn) Ping(ctx context.Context) error {
	if c.closed {
		return driver.ErrClosed
	}
	return c.conn.PingContext(ctx)
}

// Close releases the session and the underlying handle. An open transaction
// is rolled back first; its failure is reported only when the session itself
// closed cleanly.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var rbErr error
	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil {
			rbErr = fmt.Errorf("rollback on close: %w", err)
		}
		c.tx = nil
	}
	c.cache.Clear()
	err := c.conn.Close()
	if cerr := c.db.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = rbErr
	}
	return err
}

// CacheStats exposes the statement cache counters.
func (c *Conn) CacheStats() *CacheStats {
	return c.cache.Stats()
}

// Statement implements driver.Statement on top of *sql.Stmt.
type Statement struct {
	conn   *Conn
	stmt   *sql.Stmt
	args   []any
	owned  bool // closed with the Statement; cached statements are not
	closed bool
}

// Bind implements driver.Statement. Parameters are numbered from 1.
func (s *Statement) Bind(index int, v driver.Value) error {
	if s.closed {
		return driver.ErrClosed
	}
	if index < 1 {
		return fmt.Errorf("bind: parameter index %d must be >= 1", index)
	}
	arg, err := toArg(v)
	if err != nil {
		return err
	}
	for len(s.args) < index {
		s.args = append(s.args, nil)
	}
	s.args[index-1] = arg
	return nil
}

// Exec implements driver.Statement.
func (s *Statement) Exec(ctx context.Context) (int64, error) {
	if s.closed {
		return 0, driver.ErrClosed
	}
	res, err := s.stmt.ExecContext(ctx, s.args...)
	if err != nil {
		return 0, err
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		s.conn.lastID = id
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Query implements driver.Statement.
func (s *Statement) Query(ctx context.Context) (driver.ResultSet, error) {
	if s.closed {
		return nil, driver.ErrClosed
	}
	rows, err := s.stmt.QueryContext(ctx, s.args...)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		return nil, err
	}
	dbTypes := make([]string, len(types))
	for i, ct := range types {
		dbTypes[i] = ct.DatabaseTypeName()
	}
	return &ResultSet{rows: rows, cols: cols, dbTypes: dbTypes}, nil
}

// Close implements driver.Statement.
func (s *Statement) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.owned {
		return s.stmt.Close()
	}
	return nil
}

// ResultSet implements driver.ResultSet over *sql.Rows.
type ResultSet struct {
	rows    *sql.Rows
	cols    []string
	dbTypes []string
	current *driver.Row
	err     error
}

// Next advances the cursor and materializes the row.
func (r *ResultSet) Next() bool {
	r.current = nil
	if r.err != nil || !r.rows.Next() {
		return false
	}

	raw := make([]any, len(r.cols))
	dest := make([]any, len(r.cols))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := r.rows.Scan(dest...); err != nil {
		r.err = err
		return false
	}

	values := make([]driver.Value, len(raw))
	for i, src := range raw {
		v, err := fromScanned(src, r.dbTypes[i])
		if err != nil {
			r.err = err
			return false
		}
		values[i] = v
	}
	row := driver.NewRow(r.cols, values)
	r.current = &row
	return true
}

// Cols implements driver.ResultSet.
func (r *ResultSet) Cols() []string { return r.cols }

// Row implements driver.ResultSet.
func (r *ResultSet) Row() (driver.Row, error) {
	if r.current == nil {
		return driver.Row{}, driver.ErrNoRow
	}
	return *r.current, nil
}

// Err implements driver.ResultSet.
func (r *ResultSet) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

// Close implements driver.ResultSet.
func (r *ResultSet) Close() error {
	return r.rows.Close()
}
