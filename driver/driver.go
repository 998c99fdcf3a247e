// Package driver defines the engine-neutral contract between the pool,
// transaction and migration code and a concrete database backend.
//
// A backend is selected by handing a Factory to the pool. Nothing in this
// package knows about a specific engine.
package driver

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedValue is returned when a backend meets a Value kind it
	// does not handle. Kinds are closed, so this is always a backend defect.
	ErrUnsupportedValue = errors.New("driver: unsupported value kind")

	// ErrNoRow is returned by ResultSet.Row before Next or after exhaustion.
	ErrNoRow = errors.New("driver: no current row")

	// ErrClosed is returned by operations on a closed connection or statement.
	ErrClosed = errors.New("driver: closed")

	// ErrNoTransaction is returned by Commit or Rollback without Begin.
	ErrNoTransaction = errors.New("driver: no transaction in progress")

	// ErrTransactionInProgress is returned by Begin while one is open.
	ErrTransactionInProgress = errors.New("driver: transaction already in progress")
)

// Connection is one live session to one backend. It is not safe for
// concurrent use; the pool hands it to a single caller at a time.
type Connection interface {
	// Prepare compiles query for execution on this session.
	Prepare(ctx context.Context, query string) (Statement, error)

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// LastInsertID returns the identifier generated by the most recent
	// insert executed on this session.
	LastInsertID(ctx context.Context) (int64, error)

	// Ping is the liveness probe used by the pool.
	Ping(ctx context.Context) error

	Close() error
}

// Statement is a prepared statement with positional parameters.
type Statement interface {
	// Bind sets parameter index, numbered from 1.
	Bind(index int, v Value) error

	// Query executes the statement and returns a forward-only cursor.
	Query(ctx context.Context) (ResultSet, error)

	// Exec executes the statement for effect and returns the affected row count.
	Exec(ctx context.Context) (int64, error)

	Close() error
}

// ResultSet is a forward-only cursor. Row is only valid after Next returned
// true and until the following call to Next.
type ResultSet interface {
	Next() bool
	Cols() []string
	Row() (Row, error)
	Err() error
	Close() error
}

// Factory creates a new Connection. Every backend exposes one; callers own
// the value and pass it to the pool explicitly.
type Factory func(ctx context.Context) (Connection, error)

// BindAll binds args to stmt starting at parameter 1.
func BindAll(stmt Statement, args ...Value) error {
	for i, arg := range args {
		if err := stmt.Bind(i+1, arg); err != nil {
			return fmt.Errorf("bind parameter %d: %w", i+1, err)
		}
	}
	return nil
}

// ExecSQL prepares query on conn, binds args and executes it for effect.
func ExecSQL(ctx context.Context, conn Connection, query string, args ...Value) (int64, error) {
	stmt, err := conn.Prepare(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	if err := BindAll(stmt, args...); err != nil {
		return 0, err
	}
	return stmt.Exec(ctx)
}

// QuerySQL prepares query on conn, binds args and collects every row.
func QuerySQL(ctx context.Context, conn Connection, query string, args ...Value) ([]Row, error) {
	stmt, err := conn.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	if err := BindAll(stmt, args...); err != nil {
		return nil, err
	}

	rs, err := stmt.Query(ctx)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var rows []Row
	for rs.Next() {
		row, err := rs.Row()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
