package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dan-strohschein/sqlkit/driver"
)

// MockFactory produces MockConns and counts how many are alive at once.
type MockFactory struct {
	mu        sync.Mutex
	conns     []*MockConn
	err       error
	configure func(n int, c *MockConn)
	delay     time.Duration

	created atomic.Int32
	live    atomic.Int32
	peak    atomic.Int32
}

// NewMockFactory creates a factory producing healthy connections.
func NewMockFactory() *MockFactory {
	return &MockFactory{}
}

// WithError makes every creation fail with err.
func (f *MockFactory) WithError(err error) *MockFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	return f
}

// WithConfigure runs fn on each new connection before it is returned.
// n counts creations from 1.
func (f *MockFactory) WithConfigure(fn func(n int, c *MockConn)) *MockFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configure = fn
	return f
}

// WithDelay makes each creation sleep first.
func (f *MockFactory) WithDelay(d time.Duration) *MockFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// Factory returns the driver.Factory view.
func (f *MockFactory) Factory() driver.Factory {
	return f.create
}

func (f *MockFactory) create(ctx context.Context) (driver.Connection, error) {
	f.mu.Lock()
	err, delay, configure := f.err, f.delay, f.configure
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}

	n := int(f.created.Add(1))
	live := f.live.Add(1)
	for {
		peak := f.peak.Load()
		if live <= peak || f.peak.CompareAndSwap(peak, live) {
			break
		}
	}

	c := NewMockConn()
	c.onClose = func() { f.live.Add(-1) }
	if configure != nil {
		configure(n, c)
	}

	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	return c, nil
}

// Created returns the number of successful creations.
func (f *MockFactory) Created() int { return int(f.created.Load()) }

// Live returns the number of created connections not yet closed.
func (f *MockFactory) Live() int { return int(f.live.Load()) }

// Peak returns the highest Live value observed.
func (f *MockFactory) Peak() int { return int(f.peak.Load()) }

// Conns returns every connection created so far.
func (f *MockFactory) Conns() []*MockConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*MockConn, len(f.conns))
	copy(out, f.conns)
	return out
}
