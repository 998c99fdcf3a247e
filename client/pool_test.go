package client

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dan-strohschein/sqlkit/driver"
	"github.com/dan-strohschein/sqlkit/testutil"
)

func newTestPool(t *testing.T, f *testutil.MockFactory, min, max int) *Pool {
	t.Helper()
	pool, err := NewPool(f.Factory(), PoolConfig{Min: min, Max: max})
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestNewPoolValidation(t *testing.T) {
	f := testutil.NewMockFactory()
	tests := []struct {
		name string
		cfg  PoolConfig
	}{
		{"zero max", PoolConfig{Min: 0, Max: 0}},
		{"negative min", PoolConfig{Min: -1, Max: 2}},
		{"min above max", PoolConfig{Min: 3, Max: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPool(f.Factory(), tt.cfg); err == nil {
				t.Errorf("expected error for %+v", tt.cfg)
			}
		})
	}
	if _, err := NewPool(nil, DefaultPoolConfig()); err == nil {
		t.Error("expected error for nil factory")
	}
}

func TestPoolWarmup(t *testing.T) {
	f := testutil.NewMockFactory()
	pool := newTestPool(t, f, 3, 5)

	if err := pool.Warmup(context.Background()); err != nil {
		t.Fatalf("Warmup failed: %v", err)
	}
	if f.Created() != 3 {
		t.Errorf("expected 3 connections, got %d", f.Created())
	}
	stats := pool.Stats()
	if stats.Idle != 3 || stats.Total != 3 || stats.InUse != 0 {
		t.Errorf("expected idle=3 total=3 in_use=0, got %+v", stats)
	}

	// A second warmup has nothing to do.
	if err := pool.Warmup(context.Background()); err != nil {
		t.Fatalf("second Warmup failed: %v", err)
	}
	if f.Created() != 3 {
		t.Errorf("expected no extra connections, got %d", f.Created())
	}
}

func TestPoolWarmupFailsLoudly(t *testing.T) {
	f := testutil.NewMockFactory().WithConfigure(func(n int, c *testutil.MockConn) {
		if n == 2 {
			c.Kill()
		}
	})
	pool := newTestPool(t, f, 3, 3)

	err := pool.Warmup(context.Background())
	if !errors.Is(err, ErrPoolDeadConnection) {
		t.Fatalf("expected ErrPoolDeadConnection, got %v", err)
	}
	stats := pool.Stats()
	if stats.Total != 1 {
		t.Errorf("expected total to count only the good connection, got %d", stats.Total)
	}
}

func TestPoolAcquireRelease(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewMockFactory()
	pool := newTestPool(t, f, 0, 2)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if s := pool.Stats(); s.InUse != 1 || s.Total != 1 || s.Misses != 1 {
		t.Errorf("unexpected stats after first acquire: %+v", s)
	}

	pool.Release(conn)
	again, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if again != conn {
		t.Error("expected idle connection to be reused")
	}
	if s := pool.Stats(); s.Hits != 1 || f.Created() != 1 {
		t.Errorf("expected one hit and one creation, got %+v created=%d", s, f.Created())
	}
	pool.Release(again)
}

func TestPoolDoubleReleaseDoesNotDoubleCount(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewMockFactory()
	pool := newTestPool(t, f, 0, 2)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	pool.Release(conn)
	pool.Release(conn)

	s := pool.Stats()
	if s.Idle != 1 || s.Total != 1 {
		t.Errorf("expected idle=1 total=1 after double release, got %+v", s)
	}

	a, _ := pool.Acquire(ctx)
	b, _ := pool.Acquire(ctx)
	if a == b {
		t.Error("double release handed the same connection out twice")
	}
}

func TestPoolIgnoresForeignRelease(t *testing.T) {
	f := testutil.NewMockFactory()
	pool := newTestPool(t, f, 0, 2)

	pool.Release(testutil.NewMockConn())
	if s := pool.Stats(); s.Idle != 0 || s.Total != 0 {
		t.Errorf("expected foreign release to be ignored, got %+v", s)
	}
}

func TestPoolDiscardsDeadIdleConnections(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewMockFactory()
	pool := newTestPool(t, f, 2, 2)

	if err := pool.Warmup(ctx); err != nil {
		t.Fatalf("Warmup failed: %v", err)
	}
	for _, c := range f.Conns() {
		c.Kill()
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if conn == driver.Connection(f.Conns()[0]) || conn == driver.Connection(f.Conns()[1]) {
		t.Error("expected a fresh connection, got a dead one")
	}

	s := pool.Stats()
	if s.Discarded != 2 {
		t.Errorf("expected 2 discarded, got %d", s.Discarded)
	}
	if s.Total != 1 || s.Idle != 0 || s.InUse != 1 {
		t.Errorf("expected total=1 idle=0 in_use=1, got %+v", s)
	}
	for _, c := range f.Conns()[:2] {
		if !c.IsClosed() {
			t.Error("expected dead connection to be closed")
		}
	}
}

func TestPoolFactoryFailureRollsBackTotal(t *testing.T) {
	f := testutil.NewMockFactory().WithError(errors.New("connection refused"))
	pool := newTestPool(t, f, 0, 2)

	_, err := pool.Acquire(context.Background())
	if !errors.Is(err, ErrPoolFactory) {
		t.Fatalf("expected ErrPoolFactory, got %v", err)
	}
	if s := pool.Stats(); s.Total != 0 || s.Errors != 1 {
		t.Errorf("expected total=0 errors=1, got %+v", s)
	}
}

func TestPoolNewConnectionFailingPing(t *testing.T) {
	f := testutil.NewMockFactory().WithConfigure(func(n int, c *testutil.MockConn) {
		c.Kill()
	})
	pool := newTestPool(t, f, 0, 2)

	_, err := pool.Acquire(context.Background())
	if !errors.Is(err, ErrPoolDeadConnection) {
		t.Fatalf("expected ErrPoolDeadConnection, got %v", err)
	}
	if s := pool.Stats(); s.Total != 0 {
		t.Errorf("expected total rolled back to 0, got %d", s.Total)
	}
	if !f.Conns()[0].IsClosed() {
		t.Error("expected rejected connection to be closed")
	}
}

func TestPoolBlocksAtCapacity(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewMockFactory()
	pool := newTestPool(t, f, 0, 1)

	held, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	got := make(chan driver.Connection, 1)
	go func() {
		c, err := pool.Acquire(ctx)
		if err != nil {
			t.Errorf("blocked Acquire failed: %v", err)
		}
		got <- c
	}()

	select {
	case <-got:
		t.Fatal("Acquire returned while the pool was at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	pool.Release(held)

	select {
	case c := <-got:
		if c != held {
			t.Error("expected the released connection to be handed over")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Acquire was not woken by Release")
	}
	if f.Created() != 1 {
		t.Errorf("expected a single connection, got %d", f.Created())
	}
}

func TestPoolWaiterRetriesWhenReleasedConnectionIsDead(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewMockFactory()
	pool := newTestPool(t, f, 0, 1)

	held, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	got := make(chan driver.Connection, 1)
	go func() {
		c, err := pool.Acquire(ctx)
		if err != nil {
			t.Errorf("blocked Acquire failed: %v", err)
		}
		got <- c
	}()
	time.Sleep(20 * time.Millisecond)

	held.(*testutil.MockConn).Kill()
	pool.Release(held)

	select {
	case c := <-got:
		if c == held {
			t.Error("expected dead connection to be replaced")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never obtained a connection")
	}
	if s := pool.Stats(); s.Total != 1 || s.Discarded != 1 {
		t.Errorf("expected total=1 discarded=1, got %+v", s)
	}
}

func TestPoolAcquireCanceled(t *testing.T) {
	f := testutil.NewMockFactory()
	pool := newTestPool(t, f, 0, 1)

	if _, err := pool.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pool.Acquire(ctx)
	if !errors.Is(err, ErrAcquireCanceled) {
		t.Fatalf("expected ErrAcquireCanceled, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected cause to be DeadlineExceeded, got %v", err)
	}
	if s := pool.Stats(); s.Waits != 1 {
		t.Errorf("expected 1 wait, got %d", s.Waits)
	}
}

func TestPoolNeverExceedsMax(t *testing.T) {
	const max = 3
	ctx := context.Background()
	f := testutil.NewMockFactory()
	pool := newTestPool(t, f, 0, max)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				conn, err := pool.Acquire(ctx)
				if err != nil {
					t.Errorf("Acquire failed: %v", err)
					return
				}
				if s := pool.Stats(); s.Total > max || s.Idle+s.InUse != s.Total {
					t.Errorf("invariant broken: %+v", s)
				}
				time.Sleep(time.Millisecond)
				pool.Release(conn)
			}
		}()
	}
	wg.Wait()

	if f.Peak() > max {
		t.Errorf("expected at most %d live connections, peak was %d", max, f.Peak())
	}
	s := pool.Stats()
	if s.InUse != 0 || s.Idle != s.Total {
		t.Errorf("expected all connections idle at the end, got %+v", s)
	}
}

func TestPoolClose(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewMockFactory()
	pool := newTestPool(t, f, 1, 2)

	if err := pool.Warmup(ctx); err != nil {
		t.Fatalf("Warmup failed: %v", err)
	}
	out, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	extra, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	pool.Release(extra)

	if err := pool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !extra.(*testutil.MockConn).IsClosed() {
		t.Error("expected idle connection to be closed")
	}
	if _, err := pool.Acquire(ctx); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}

	pool.Release(out)
	if !out.(*testutil.MockConn).IsClosed() {
		t.Error("expected connection released after close to be closed")
	}
	if f.Live() != 0 {
		t.Errorf("expected no live connections, got %d", f.Live())
	}
}

func TestPoolCloseDuringWarmup(t *testing.T) {
	var pool *Pool
	f := testutil.NewMockFactory().WithConfigure(func(n int, c *testutil.MockConn) {
		if n == 2 {
			pool.Close()
		}
	})
	pool = newTestPool(t, f, 3, 3)

	if err := pool.Warmup(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
	if f.Created() != 2 {
		t.Errorf("expected warmup to stop after 2 creations, got %d", f.Created())
	}
	if f.Live() != 0 {
		t.Errorf("expected no live connections, got %d", f.Live())
	}
	if stats := pool.Stats(); stats.Total != 0 || stats.Idle != 0 {
		t.Errorf("expected an empty pool, got %+v", stats)
	}
}

func TestPoolLogsCloseErrors(t *testing.T) {
	var buf bytes.Buffer
	f := testutil.NewMockFactory().WithConfigure(func(n int, c *testutil.MockConn) {
		c.WithCloseError(errors.New("socket already gone"))
	})
	pool, err := NewPool(f.Factory(), PoolConfig{Min: 0, Max: 1}, WithPoolLogger(NewLogger("DEBUG", &buf)))
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	pool.Discard(conn)

	if !strings.Contains(buf.String(), "closing connection failed") || !strings.Contains(buf.String(), "socket already gone") {
		t.Errorf("expected the close error to be logged, got:\n%s", buf.String())
	}
	if stats := pool.Stats(); stats.Total != 0 {
		t.Errorf("expected the slot to be freed, got %+v", stats)
	}
}

func TestPoolCloseWakesWaiters(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewMockFactory()
	pool := newTestPool(t, f, 0, 1)

	if _, err := pool.Acquire(ctx); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(ctx)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	pool.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrPoolClosed) {
			t.Errorf("expected ErrPoolClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by Close")
	}
}
