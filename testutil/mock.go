package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dan-strohschein/sqlkit/driver"
)

// ErrMockDead is returned by Ping on a connection that was killed.
var ErrMockDead = errors.New("mock: connection is dead")

// ExecHandler decides the outcome of an Exec call.
type ExecHandler func(query string, args []driver.Value) (int64, error)

// QueryHandler returns the columns and rows for a Query call.
type QueryHandler func(query string, args []driver.Value) ([]string, [][]driver.Value, error)

// MockConn implements driver.Connection for testing. It records every call
// and lets tests inject failures.
//
// Example usage:
//
//	conn := testutil.NewMockConn().WithCommitError(errors.New("boom"))
//	err := conn.Commit(ctx)
//	conn.Count("Commit") // 1
type MockConn struct {
	mu sync.Mutex

	pingErr     error
	beginErr    error
	commitErr   error
	rollbackErr error
	prepareErr  error
	closeErr    error
	execHandler ExecHandler
	queryFn     QueryHandler

	calls    []string
	executed []string
	lastID   int64
	inTx     bool
	closed   bool
	onClose  func()
}

// NewMockConn creates a healthy mock connection.
func NewMockConn() *MockConn {
	return &MockConn{}
}

// WithPingError makes Ping fail.
func (m *MockConn) WithPingError(err error) *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
	return m
}

// WithBeginError makes Begin fail.
func (m *MockConn) WithBeginError(err error) *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beginErr = err
	return m
}

// WithCommitError makes Commit fail.
func (m *MockConn) WithCommitError(err error) *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitErr = err
	return m
}

// WithCloseError makes Close report err. The connection is still closed.
func (m *MockConn) WithCloseError(err error) *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
	return m
}

// WithRollbackError makes Rollback fail.
func (m *MockConn) WithRollbackError(err error) *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbackErr = err
	return m
}

// WithPrepareError makes Prepare fail.
func (m *MockConn) WithPrepareError(err error) *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepareErr = err
	return m
}

// WithExecHandler installs a handler for Exec calls.
func (m *MockConn) WithExecHandler(h ExecHandler) *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execHandler = h
	return m
}

// WithQueryHandler installs a handler for Query calls.
func (m *MockConn) WithQueryHandler(h QueryHandler) *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryFn = h
	return m
}

// Kill makes every following Ping fail with ErrMockDead.
func (m *MockConn) Kill() {
	m.WithPingError(ErrMockDead)
}

// Calls returns the recorded call names in order.
func (m *MockConn) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Count returns how often the named call was made.
func (m *MockConn) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

// Executed returns the SQL text of every successful Exec call.
func (m *MockConn) Executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.executed))
	copy(out, m.executed)
	return out
}

// InTransaction reports whether Begin was called without a matching end.
func (m *MockConn) InTransaction() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inTx
}

// IsClosed reports whether Close was called.
func (m *MockConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockConn) record(name string) {
	m.calls = append(m.calls, name)
}

// Prepare implements driver.Connection.
func (m *MockConn) Prepare(ctx context.Context, query string) (driver.Statement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Prepare")
	if m.closed {
		return nil, driver.ErrClosed
	}
	if m.prepareErr != nil {
		return nil, m.prepareErr
	}
	return &MockStatement{conn: m, query: query}, nil
}

// Begin implements driver.Connection.
func (m *MockConn) Begin(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Begin")
	if m.beginErr != nil {
		return m.beginErr
	}
	if m.inTx {
		return driver.ErrTransactionInProgress
	}
	m.inTx = true
	return nil
}

// Commit implements driver.Connection.
func (m *MockConn) Commit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Commit")
	if m.commitErr != nil {
		return m.commitErr
	}
	if !m.inTx {
		return driver.ErrNoTransaction
	}
	m.inTx = false
	return nil
}

// Rollback implements driver.Connection.
func (m *MockConn) Rollback(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Rollback")
	if m.rollbackErr != nil {
		return m.rollbackErr
	}
	if !m.inTx {
		return driver.ErrNoTransaction
	}
	m.inTx = false
	return nil
}

// LastInsertID implements driver.Connection.
func (m *MockConn) LastInsertID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastID, nil
}

// Ping implements driver.Connection.
func (m *MockConn) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Ping")
	if m.closed {
		return driver.ErrClosed
	}
	return m.pingErr
}

// Close implements driver.Connection.
func (m *MockConn) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.record("Close")
	m.closed = true
	onClose, err := m.onClose, m.closeErr
	m.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return err
}

func (m *MockConn) exec(query string, args []driver.Value) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Exec")
	n := int64(0)
	if m.execHandler != nil {
		var err error
		n, err = m.execHandler(query, args)
		if err != nil {
			return 0, err
		}
	}
	m.executed = append(m.executed, query)
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT") {
		m.lastID++
	}
	return n, nil
}

func (m *MockConn) query(query string, args []driver.Value) (driver.ResultSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Query")
	if m.queryFn == nil {
		return &MockResultSet{}, nil
	}
	cols, rows, err := m.queryFn(query, args)
	if err != nil {
		return nil, err
	}
	return &MockResultSet{cols: cols, rows: rows, pos: -1}, nil
}

// MockStatement implements driver.Statement against a MockConn.
type MockStatement struct {
	conn   *MockConn
	query  string
	args   []driver.Value
	closed bool
}

// Bind implements driver.Statement.
func (s *MockStatement) Bind(index int, v driver.Value) error {
	if index < 1 {
		return errors.New("mock: parameter index must be >= 1")
	}
	for len(s.args) < index {
		s.args = append(s.args, driver.Null())
	}
	s.args[index-1] = v
	return nil
}

// Args returns the bound parameters.
func (s *MockStatement) Args() []driver.Value { return s.args }

// Exec implements driver.Statement.
func (s *MockStatement) Exec(ctx context.Context) (int64, error) {
	if s.closed {
		return 0, driver.ErrClosed
	}
	return s.conn.exec(s.query, s.args)
}

// Query implements driver.Statement.
func (s *MockStatement) Query(ctx context.Context) (driver.ResultSet, error) {
	if s.closed {
		return nil, driver.ErrClosed
	}
	return s.conn.query(s.query, s.args)
}

// Close implements driver.Statement.
func (s *MockStatement) Close() error {
	s.closed = true
	return nil
}

// MockResultSet implements driver.ResultSet over fixed rows.
type MockResultSet struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

// NewMockResultSet builds a result set from literal rows.
func NewMockResultSet(cols []string, rows [][]driver.Value) *MockResultSet {
	return &MockResultSet{cols: cols, rows: rows, pos: -1}
}

// Next implements driver.ResultSet.
func (r *MockResultSet) Next() bool {
	if r.pos+1 >= len(r.rows) {
		r.pos = len(r.rows)
		return false
	}
	r.pos++
	return true
}

// Cols implements driver.ResultSet.
func (r *MockResultSet) Cols() []string { return r.cols }

// Row implements driver.ResultSet.
func (r *MockResultSet) Row() (driver.Row, error) {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return driver.Row{}, driver.ErrNoRow
	}
	return driver.NewRow(r.cols, r.rows[r.pos]), nil
}

// Err implements driver.ResultSet.
func (r *MockResultSet) Err() error { return nil }

// Close implements driver.ResultSet.
func (r *MockResultSet) Close() error { return nil }
