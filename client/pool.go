package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dan-strohschein/sqlkit/driver"
)

// PoolConfig bounds the pool.
type PoolConfig struct {
	// Min is the number of connections Warmup creates.
	// Default: 1
	Min int `json:"min"`

	// Max is the hard limit on connections alive at once.
	// Default: 8
	Max int `json:"max"`
}

// DefaultPoolConfig returns min 1, max 8.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Min: 1, Max: 8}
}

// Validate checks the bounds.
func (c PoolConfig) Validate() error {
	if c.Max < 1 {
		return fmt.Errorf("pool max must be >= 1, got %d", c.Max)
	}
	if c.Min < 0 {
		return fmt.Errorf("pool min must be >= 0, got %d", c.Min)
	}
	if c.Min > c.Max {
		return fmt.Errorf("pool min (%d) exceeds max (%d)", c.Min, c.Max)
	}
	return nil
}

// PoolStats is a point-in-time snapshot of pool counters.
type PoolStats struct {
	Idle      int           `json:"idle"`
	InUse     int           `json:"in_use"`
	Total     int           `json:"total"`
	Max       int           `json:"max"`
	Waits     int64         `json:"waits"`
	WaitTime  time.Duration `json:"wait_time"`
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Discarded int64         `json:"discarded"`
	Errors    int64         `json:"errors"`
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the logger. The default discards output.
func WithPoolLogger(l Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l.WithFields(String("component", "pool"))
		}
	}
}

// Pool is a bounded blocking pool of driver connections.
//
// A single mutex guards the idle stack, the checked-out set and the total
// count, so idle+inUse == total <= max holds whenever the lock is free.
// Connections that fail their liveness probe are discarded only when they
// are popped by Acquire; there is no background health checker.
type Pool struct {
	factory driver.Factory
	min     int
	max     int
	logger  Logger

	mu      sync.Mutex
	idle    []driver.Connection
	inUse   map[driver.Connection]struct{}
	total   int
	closed  bool
	release chan struct{} // closed and replaced on every state change that may unblock a waiter

	waits     int64
	waitTime  time.Duration
	hits      int64
	misses    int64
	discarded int64
	errors    int64
}

// NewPool creates an empty pool. No connection is opened until Warmup or
// the first Acquire. Connections returned by factory must be comparable
// (pointer types), since the pool tracks them by identity.
func NewPool(factory driver.Factory, cfg PoolConfig, opts ...PoolOption) (*Pool, error) {
	if factory == nil {
		return nil, fmt.Errorf("pool factory cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		factory: factory,
		min:     cfg.Min,
		max:     cfg.Max,
		logger:  NewNoopLogger(),
		inUse:   make(map[driver.Connection]struct{}, cfg.Max),
		release: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Warmup eagerly creates connections until Min exist. Any creation or
// liveness failure is returned; connections created before the failure stay
// pooled.
func (p *Pool) Warmup(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return newPoolError(CodePoolClosed, "pool is closed", nil)
		}
		if p.total >= p.min {
			p.mu.Unlock()
			return nil
		}
		p.total++
		p.mu.Unlock()

		conn, err := p.create(ctx)
		if err != nil {
			return err
		}

		p.mu.Lock()
		if p.closed {
			p.total--
			p.broadcastLocked()
			p.mu.Unlock()
			p.closeConn(conn)
			return newPoolError(CodePoolClosed, "pool is closed", nil)
		}
		p.idle = append(p.idle, conn)
		p.broadcastLocked()
		p.mu.Unlock()
	}
}

// Acquire returns a live connection, creating one if idle is empty and the
// pool is below Max. At capacity it blocks until a connection is released
// or ctx is done, then retries the whole sequence.
func (p *Pool) Acquire(ctx context.Context) (driver.Connection, error) {
	start := time.Now()
	waited := false

	for {
		conn, wait, err := p.tryAcquire(ctx)
		if err != nil {
			return nil, err
		}
		if conn != nil {
			if waited {
				p.mu.Lock()
				p.waitTime += time.Since(start)
				p.mu.Unlock()
			}
			return conn, nil
		}

		if !waited {
			waited = true
			p.mu.Lock()
			p.waits++
			p.mu.Unlock()
		}

		select {
		case <-ctx.Done():
			return nil, newPoolError(CodePoolAcquireCancel, "acquire canceled while pool at capacity", ctx.Err())
		case <-wait:
		}
	}
}

// tryAcquire runs one pass of the acquisition sequence. It returns either a
// connection, an error, or a channel to wait on before the next pass.
func (p *Pool) tryAcquire(ctx context.Context) (driver.Connection, <-chan struct{}, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, nil, newPoolError(CodePoolClosed, "pool is closed", nil)
		}

		if n := len(p.idle); n > 0 {
			conn := p.idle[n-1]
			p.idle[n-1] = nil
			p.idle = p.idle[:n-1]
			p.inUse[conn] = struct{}{}
			p.mu.Unlock()

			if err := conn.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					p.Release(conn)
					return nil, nil, newPoolError(CodePoolAcquireCancel, "acquire canceled during liveness probe", ctx.Err())
				}
				p.logger.Debug("discarding dead idle connection", Error("error", err))
				p.discard(conn)
				continue
			}

			p.mu.Lock()
			p.hits++
			p.mu.Unlock()
			return conn, nil, nil
		}

		if p.total < p.max {
			p.total++
			p.mu.Unlock()

			conn, err := p.create(ctx)
			if err != nil {
				return nil, nil, err
			}

			p.mu.Lock()
			p.inUse[conn] = struct{}{}
			p.misses++
			p.mu.Unlock()
			return conn, nil, nil
		}

		wait := p.release
		p.mu.Unlock()
		return nil, wait, nil
	}
}

// create calls the factory for a slot already counted in total. On failure
// the slot is given back.
func (p *Pool) create(ctx context.Context) (driver.Connection, error) {
	conn, err := p.factory(ctx)
	if err != nil {
		p.giveBackSlot()
		p.logger.Warn("connection factory failed", Error("error", err))
		return nil, newPoolError(CodePoolFactory, "failed to create connection", err)
	}
	if err := conn.Ping(ctx); err != nil {
		p.closeConn(conn)
		p.giveBackSlot()
		p.logger.Warn("new connection failed liveness probe", Error("error", err))
		return nil, newPoolError(CodePoolDeadConnection, "new connection failed liveness probe", err)
	}
	p.logger.Debug("connection created")
	return conn, nil
}

func (p *Pool) giveBackSlot() {
	p.mu.Lock()
	p.total--
	p.errors++
	p.broadcastLocked()
	p.mu.Unlock()
}

// discard drops a checked-out connection and frees its slot.
func (p *Pool) discard(conn driver.Connection) {
	p.mu.Lock()
	delete(p.inUse, conn)
	p.total--
	p.discarded++
	p.broadcastLocked()
	p.mu.Unlock()

	p.closeConn(conn)
}

func (p *Pool) closeConn(conn driver.Connection) {
	if err := conn.Close(); err != nil {
		p.logger.Debug("closing connection failed", Error("error", err))
	}
}

// Release returns conn to the idle set. Releasing a connection that is not
// checked out, including a second release of the same one, is ignored.
func (p *Pool) Release(conn driver.Connection) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	if _, ok := p.inUse[conn]; !ok {
		p.mu.Unlock()
		p.logger.Warn("ignoring release of connection not checked out from this pool")
		return
	}
	delete(p.inUse, conn)

	if p.closed {
		p.total--
		p.broadcastLocked()
		p.mu.Unlock()
		p.closeConn(conn)
		return
	}

	p.idle = append(p.idle, conn)
	p.broadcastLocked()
	p.mu.Unlock()
}

// Discard drops a checked-out connection the caller knows is broken instead
// of returning it to the idle set.
func (p *Pool) Discard(conn driver.Connection) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	_, ok := p.inUse[conn]
	p.mu.Unlock()
	if !ok {
		p.logger.Warn("ignoring discard of connection not checked out from this pool")
		return
	}
	p.discard(conn)
}

// Stats returns a snapshot of pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Idle:      len(p.idle),
		InUse:     len(p.inUse),
		Total:     p.total,
		Max:       p.max,
		Waits:     p.waits,
		WaitTime:  p.waitTime,
		Hits:      p.hits,
		Misses:    p.misses,
		Discarded: p.discarded,
		Errors:    p.errors,
	}
}

// Close closes every idle connection and wakes blocked acquirers, which then
// fail with ErrPoolClosed. Checked-out connections are closed when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.total -= len(idle)
	p.broadcastLocked()
	p.mu.Unlock()

	var firstErr error
	for _, conn := range idle {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// broadcastLocked wakes every goroutine waiting in Acquire. p.mu must be held.
func (p *Pool) broadcastLocked() {
	close(p.release)
	p.release = make(chan struct{})
}
