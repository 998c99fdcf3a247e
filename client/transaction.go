package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dan-strohschein/sqlkit/driver"
)

type txState int

const (
	txActive txState = iota
	txCommitted
	txRolledBack
	txMoved
)

func (s txState) String() string {
	switch s {
	case txActive:
		return "active"
	case txCommitted:
		return "committed"
	case txRolledBack:
		return "rolledback"
	case txMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// Transaction binds one pooled connection for its lifetime and drives its
// begin/commit/rollback lifecycle. It leaves the Active state exactly once.
//
// Always pair Begin with a deferred Close:
//
//	tx, err := pool.Begin(ctx)
//	if err != nil {
//		return err
//	}
//	defer tx.Close()
//	...
//	return tx.Commit(ctx)
type Transaction struct {
	id        string
	conn      driver.Connection
	pool      *Pool
	logger    Logger
	state     txState
	startedAt time.Time
	mu        sync.Mutex
}

// Begin acquires a connection and starts a transaction on it. If begin fails
// the connection goes back to the pool.
func (p *Pool) Begin(ctx context.Context) (*Transaction, error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := conn.Begin(ctx); err != nil {
		p.Release(conn)
		return nil, newTxError(CodeTxBeginFailed, "failed to begin transaction", id, "", err)
	}

	return &Transaction{
		id:        id,
		conn:      conn,
		pool:      p,
		logger:    p.logger.WithFields(String("tx_id", id)),
		state:     txActive,
		startedAt: time.Now(),
	}, nil
}

// ID returns the transaction ID.
func (tx *Transaction) ID() string {
	return tx.id
}

// Active reports whether Commit or Rollback may still be called.
func (tx *Transaction) Active() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state == txActive
}

// State returns "active", "committed", "rolledback" or "moved".
func (tx *Transaction) State() string {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state.String()
}

// Conn returns the bound connection, or nil once the transaction is no
// longer active.
func (tx *Transaction) Conn() driver.Connection {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.state != txActive {
		return nil
	}
	return tx.conn
}

// Exec runs a statement for effect inside the transaction.
func (tx *Transaction) Exec(ctx context.Context, query string, args ...driver.Value) (int64, error) {
	conn, err := tx.activeConn()
	if err != nil {
		return 0, err
	}
	return driver.ExecSQL(ctx, conn, query, args...)
}

// Query runs a statement inside the transaction and collects its rows.
func (tx *Transaction) Query(ctx context.Context, query string, args ...driver.Value) ([]driver.Row, error) {
	conn, err := tx.activeConn()
	if err != nil {
		return nil, err
	}
	return driver.QuerySQL(ctx, conn, query, args...)
}

func (tx *Transaction) activeConn() (driver.Connection, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkActiveLocked(); err != nil {
		return nil, err
	}
	return tx.conn, nil
}

func (tx *Transaction) checkActiveLocked() error {
	switch tx.state {
	case txCommitted:
		return errTxAlreadyCommitted(tx.id)
	case txRolledBack:
		return errTxAlreadyRolledBack(tx.id)
	case txMoved:
		return errTxMoved(tx.id)
	}
	return nil
}

// Commit commits and releases the connection. A second Commit, or Commit
// after Rollback, fails fast. If the commit itself fails the transaction stays
// active so that Close or Rollback can still end it.
func (tx *Transaction) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActiveLocked(); err != nil {
		return err
	}

	if err := tx.conn.Commit(ctx); err != nil {
		return newTxError(CodeTxCommitFailed, "failed to commit transaction", tx.id, txActive.String(), err)
	}

	tx.state = txCommitted
	tx.pool.Release(tx.conn)
	tx.conn = nil
	tx.logger.Debug("transaction committed", Duration("duration", time.Since(tx.startedAt)))
	return nil
}

// Rollback rolls back and releases the connection. It fails fast if the
// transaction already ended. A connection whose rollback failed is discarded
// rather than pooled.
func (tx *Transaction) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActiveLocked(); err != nil {
		return err
	}

	err := tx.endLocked(ctx)
	if err != nil {
		return newTxError(CodeTxRollbackFailed, "failed to rollback transaction", tx.id, txActive.String(), err)
	}
	tx.logger.Debug("transaction rolled back", Duration("duration", time.Since(tx.startedAt)))
	return nil
}

// endLocked issues the rollback and gives up the connection.
func (tx *Transaction) endLocked(ctx context.Context) error {
	err := tx.conn.Rollback(ctx)
	tx.state = txRolledBack
	if err != nil {
		tx.pool.Discard(tx.conn)
	} else {
		tx.pool.Release(tx.conn)
	}
	tx.conn = nil
	return err
}

// Close rolls back a transaction that is still active and is a no-op
// otherwise. Errors from this implicit rollback are logged and dropped: this
// is the one place where the package suppresses an error.
func (tx *Transaction) Close() {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != txActive {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tx.endLocked(ctx); err != nil {
		tx.logger.Warn("implicit rollback failed", Error("error", err))
		return
	}
	tx.logger.Debug("transaction rolled back on close", Duration("duration", time.Since(tx.startedAt)))
}

// Move transfers ownership of the connection to a new guard. The receiver
// becomes permanently inactive and will not roll back on Close.
func (tx *Transaction) Move() (*Transaction, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActiveLocked(); err != nil {
		return nil, err
	}

	moved := &Transaction{
		id:        tx.id,
		conn:      tx.conn,
		pool:      tx.pool,
		logger:    tx.logger,
		state:     txActive,
		startedAt: tx.startedAt,
	}
	tx.conn = nil
	tx.state = txMoved
	return moved, nil
}
