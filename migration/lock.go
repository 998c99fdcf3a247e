package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dan-strohschein/sqlkit/client"
	"github.com/google/uuid"
)

// TODO: a file lock only coordinates processes sharing the migrations
// directory. Add a database-backed variant (pg_advisory_lock, GET_LOCK) for
// runners on separate hosts.

// LockTimeoutEnv overrides the stale lock timeout.
const LockTimeoutEnv = "SQLKIT_LOCK_TIMEOUT"

const (
	defaultLockTimeout = time.Hour
	maxLockRetries     = 10
	maxLockBackoff     = time.Minute
)

// LockMetadata is the JSON body of the lock file.
type LockMetadata struct {
	Token     string    `json:"token"`
	Holder    string    `json:"holder"`
	Hostname  string    `json:"hostname"`
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"` // CI job id and similar
}

func (m *LockMetadata) fields() []client.Field {
	if m == nil {
		return nil
	}
	return []client.Field{
		client.String("holder", m.Holder),
		client.String("hostname", m.Hostname),
		client.Int("pid", m.PID),
	}
}

// MigrationLock serializes runners that share a migrations directory with
// an O_EXCL lock file.
type MigrationLock struct {
	path         string
	staleTimeout time.Duration
	maxRetries   int
	retryBackoff time.Duration
	held         *LockMetadata
	logger       client.Logger
}

// NewMigrationLock creates a lock for dir. A zero timeout reads
// SQLKIT_LOCK_TIMEOUT, falling back to one hour.
func NewMigrationLock(dir string, timeout time.Duration) (*MigrationLock, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory path cannot be empty")
	}
	if timeout == 0 {
		var err error
		if timeout, err = lockTimeoutFromEnv(); err != nil {
			return nil, err
		}
	}
	return &MigrationLock{
		path:         filepath.Join(dir, LockFileName),
		staleTimeout: timeout,
		logger:       client.NewNoopLogger(),
	}, nil
}

// Path returns the lock file path.
func (l *MigrationLock) Path() string { return l.path }

// SetLogger routes lock warnings to logger.
func (l *MigrationLock) SetLogger(logger client.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// SetRetry makes AcquireLock retry up to maxRetries times, doubling backoff
// after each attempt.
func (l *MigrationLock) SetRetry(maxRetries int, backoff time.Duration) error {
	switch {
	case maxRetries < 0:
		return fmt.Errorf("maxRetries cannot be negative")
	case maxRetries > maxLockRetries:
		return fmt.Errorf("maxRetries cannot exceed %d", maxLockRetries)
	case backoff < 0:
		return fmt.Errorf("backoff cannot be negative")
	case backoff > maxLockBackoff:
		return fmt.Errorf("backoff cannot exceed %s", maxLockBackoff)
	}
	l.maxRetries = maxRetries
	l.retryBackoff = backoff
	return nil
}

// AcquireLock creates the lock file. A stale lock is removed once; a live
// one is retried as configured, and waiting stops when ctx is done.
func (l *MigrationLock) AcquireLock(ctx context.Context) error {
	cleaned := false
	for attempt := 0; ; {
		err := l.create()
		if err == nil {
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}

		// A lock that reappears after cleanup belongs to someone else.
		if !cleaned && l.stale() {
			cleaned = true
			holder, _ := l.readHolder()
			l.logger.Warn("removing stale migration lock",
				append(holder.fields(), client.Duration("stale_timeout", l.staleTimeout))...)
			if err := l.remove(); err != nil {
				return err
			}
			continue
		}

		holder, _ := l.readHolder()
		if attempt >= l.maxRetries {
			return conflictError(holder)
		}

		wait := l.retryBackoff << uint(attempt)
		if wait > maxLockBackoff || wait < 0 {
			wait = maxLockBackoff
		}
		attempt++
		l.logger.Warn("migration lock held, retrying", append(holder.fields(),
			client.Duration("backoff", wait),
			client.Int("attempt", attempt),
			client.Int("max_retries", l.maxRetries))...)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (l *MigrationLock) create() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	meta := newLockMetadata()
	data, err := json.MarshalIndent(meta, "", "  ")
	if err == nil {
		_, err = f.Write(data)
	}
	if err != nil {
		os.Remove(l.path)
		return fmt.Errorf("failed to write lock metadata: %w", err)
	}
	l.held = meta
	return nil
}

func newLockMetadata() *LockMetadata {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	holder := os.Getenv("USER")
	if holder == "" {
		holder = os.Getenv("USERNAME")
	}
	if holder == "" {
		holder = "unknown"
	}
	return &LockMetadata{
		Token:     uuid.NewString(),
		Holder:    holder,
		Hostname:  hostname,
		PID:       os.Getpid(),
		Timestamp: time.Now(),
	}
}

// ReleaseLock removes the lock file if its token is still ours. A lock
// taken over after a stale cleanup is left alone.
func (l *MigrationLock) ReleaseLock() error {
	held := l.held
	if held == nil {
		return nil
	}
	l.held = nil

	current, err := l.readHolder()
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return fmt.Errorf("failed to read lock: %w", err)
	case current.Token != held.Token:
		l.logger.Warn("migration lock was taken over, leaving it in place", current.fields()...)
		return nil
	}
	return l.remove()
}

// ForceUnlock removes a lock held on this host by a process that is no
// longer running, or by this process.
func (l *MigrationLock) ForceUnlock() error {
	holder, err := l.readHolder()
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		l.logger.Warn("forcing unlock of unreadable lock", client.Error("error", err))
		return l.remove()
	}

	if host, _ := os.Hostname(); host != "" && holder.Hostname != "" && host != holder.Hostname {
		return fmt.Errorf("cannot force unlock: lock held on %s, current host is %s", holder.Hostname, host)
	}
	if holder.PID != os.Getpid() && processAlive(holder.PID) {
		return fmt.Errorf("cannot force unlock: process %d is still running", holder.PID)
	}

	l.logger.Warn("force unlocking migration lock", holder.fields()...)
	return l.remove()
}

func (l *MigrationLock) remove() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// stale compares the lock file mtime against the timeout.
func (l *MigrationLock) stale() bool {
	info, err := os.Stat(l.path)
	return err == nil && time.Since(info.ModTime()) > l.staleTimeout
}

func (l *MigrationLock) readHolder() (*LockMetadata, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	var meta LockMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode lock metadata: %w", err)
	}
	return &meta, nil
}

func conflictError(holder *LockMetadata) error {
	if holder == nil {
		return ErrLockConflict(nil, "")
	}
	return ErrLockConflict(holder, time.Since(holder.Timestamp).Round(time.Second).String())
}

func lockTimeoutFromEnv() (time.Duration, error) {
	v := os.Getenv(LockTimeoutEnv)
	if v == "" {
		return defaultLockTimeout, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", LockTimeoutEnv, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", LockTimeoutEnv, d)
	}
	return d, nil
}

// processAlive probes pid with signal 0. Always false on platforms where
// the probe is unsupported.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
