package migration

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dan-strohschein/sqlkit/client"
	"github.com/dan-strohschein/sqlkit/driver"
)

// Option configures a FileRunner.
type Option func(*FileRunner)

// WithTable sets the ledger table. Default "schema_migrations".
func WithTable(name string) Option {
	return func(r *FileRunner) { r.table = name }
}

// WithLogger sets the logger for apply and rollback steps.
func WithLogger(l client.Logger) Option {
	return func(r *FileRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithChecksumValidation controls drift handling in ApplyAll. When enabled
// (the default) a changed applied script aborts the run before anything
// executes; when disabled the drift is logged and the script is skipped.
func WithChecksumValidation(enabled bool) Option {
	return func(r *FileRunner) { r.validateChecksums = enabled }
}

// WithLock makes ApplyAll and Rollback hold the directory lock.
func WithLock(enabled bool) Option {
	return func(r *FileRunner) { r.useLock = enabled }
}

// WithLockRetry configures retries when the directory lock is held.
func WithLockRetry(maxRetries int, backoff time.Duration) Option {
	return func(r *FileRunner) {
		r.lockRetries = maxRetries
		r.lockBackoff = backoff
	}
}

// FileRunner applies and reverts <id>.up.sql / <id>.down.sql scripts from a
// directory, tracking applied ids in a ledger table on the connection.
//
// Scripts run statement by statement with no implicit transaction. A
// failure part way through a script leaves earlier statements applied and
// the id unrecorded.
type FileRunner struct {
	conn              driver.Connection
	dir               string
	table             string
	logger            client.Logger
	validateChecksums bool
	useLock           bool
	lockRetries       int
	lockBackoff       time.Duration

	history *History
}

// NewFileRunner creates a runner for the scripts in dir.
func NewFileRunner(conn driver.Connection, dir string, opts ...Option) (*FileRunner, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("directory path cannot be empty")
	}

	r := &FileRunner{
		conn:              conn,
		dir:               dir,
		table:             DefaultTable,
		logger:            client.NewNoopLogger(),
		validateChecksums: true,
	}
	for _, opt := range opts {
		opt(r)
	}

	history, err := NewHistory(conn, r.table)
	if err != nil {
		return nil, err
	}
	r.history = history
	r.logger = r.logger.WithFields(client.String("component", "migration"), client.String("dir", dir))
	return r, nil
}

// Dir returns the migrations directory.
func (r *FileRunner) Dir() string { return r.dir }

// History returns the ledger.
func (r *FileRunner) History() *History { return r.history }

// ApplyAll runs every pending up script in id order and records each in the
// ledger. It returns the ids applied by this call, including those applied
// before a failure.
func (r *FileRunner) ApplyAll(ctx context.Context) ([]string, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	pairs, records, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	validator := NewMigrationValidator(pairs, records)
	if conflicts := validator.ChecksumConflicts(); len(conflicts) > 0 {
		if r.validateChecksums {
			return nil, ErrChecksumMismatch(conflicts)
		}
		for _, c := range conflicts {
			r.logger.Warn("applied migration changed on disk",
				client.String("migration_id", c.MigrationID),
				client.String("expected", c.Expected),
				client.String("actual", c.Actual))
		}
	}

	applied := make([]string, 0)
	for _, p := range pairs {
		if validator.IsApplied(p.ID) {
			continue
		}
		if err := r.applyPair(ctx, p); err != nil {
			return applied, err
		}
		applied = append(applied, p.ID)
	}

	if len(applied) == 0 {
		r.logger.Info("no pending migrations")
	}
	return applied, nil
}

func (r *FileRunner) applyPair(ctx context.Context, p Pair) error {
	start := time.Now()

	stmts, checksum, err := ReadScript(p.UpPath)
	if err != nil {
		return err
	}
	for i, stmt := range stmts {
		if _, err := driver.ExecSQL(ctx, r.conn, stmt); err != nil {
			return ErrMigrationFailed(p.ID, fmt.Errorf("statement %d failed: %w", i+1, err))
		}
	}

	order, err := r.history.Record(ctx, p.ID, checksum)
	if err != nil {
		return err
	}

	r.logger.Info("applied migration",
		client.String("migration_id", p.ID),
		client.Int("statements", len(stmts)),
		client.Int64("applied_order", order),
		client.Duration("duration", time.Since(start)))
	return nil
}

// Rollback reverts the steps most recently applied migrations, newest
// first. Every down script is checked before anything runs. It returns the
// ids reverted by this call.
func (r *FileRunner) Rollback(ctx context.Context, steps int) ([]string, error) {
	if steps < 1 {
		return nil, fmt.Errorf("rollback steps must be at least 1, got %d", steps)
	}

	release, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	pairs, _, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := r.history.Latest(ctx, steps)
	if err != nil {
		return nil, err
	}
	if len(latest) < steps {
		return nil, ErrInsufficientApplied(steps, len(latest))
	}

	byID := make(map[string]Pair, len(pairs))
	for _, p := range pairs {
		byID[p.ID] = p
	}
	for _, rec := range latest {
		if !byID[rec.ID].HasDown() {
			return nil, ErrMissingDownScript(rec.ID)
		}
	}

	reverted := make([]string, 0, len(latest))
	for _, rec := range latest {
		start := time.Now()

		stmts, _, err := ReadScript(byID[rec.ID].DownPath)
		if err != nil {
			return reverted, err
		}
		for i, stmt := range stmts {
			if _, err := driver.ExecSQL(ctx, r.conn, stmt); err != nil {
				return reverted, ErrMigrationFailed(rec.ID, fmt.Errorf("down statement %d failed: %w", i+1, err))
			}
		}
		if err := r.history.Remove(ctx, rec.ID); err != nil {
			return reverted, err
		}

		reverted = append(reverted, rec.ID)
		r.logger.Info("rolled back migration",
			client.String("migration_id", rec.ID),
			client.Int("statements", len(stmts)),
			client.Duration("duration", time.Since(start)))
	}
	return reverted, nil
}

// Status merges the scripts on disk with the ledger, sorted by id.
func (r *FileRunner) Status(ctx context.Context) ([]StatusEntry, error) {
	pairs, records, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	entries := make([]StatusEntry, 0, len(pairs)+len(records))
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		seen[p.ID] = true
		e := StatusEntry{ID: p.ID, Checksum: p.Checksum, HasDown: p.HasDown()}
		if rec, ok := byID[p.ID]; ok {
			e.Applied = true
			e.StoredChecksum = rec.Checksum
			e.Order = rec.Order
			e.AppliedAt = rec.AppliedAt
			e.Drift = rec.Checksum != p.Checksum
		}
		entries = append(entries, e)
	}
	for _, rec := range records {
		if seen[rec.ID] {
			continue
		}
		entries = append(entries, StatusEntry{
			ID:             rec.ID,
			Applied:        true,
			StoredChecksum: rec.Checksum,
			Order:          rec.Order,
			AppliedAt:      rec.AppliedAt,
			Missing:        true,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

// Verify checks the scripts against the ledger without applying anything.
func (r *FileRunner) Verify(ctx context.Context) (*ValidationResult, error) {
	pairs, records, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return NewMigrationValidator(pairs, records).Validate(), nil
}

func (r *FileRunner) load(ctx context.Context) ([]Pair, []Record, error) {
	pairs, err := ScanDir(r.dir)
	if err != nil {
		return nil, nil, err
	}
	if err := r.history.Ensure(ctx); err != nil {
		return nil, nil, err
	}
	records, err := r.history.Records(ctx)
	if err != nil {
		return nil, nil, err
	}
	return pairs, records, nil
}

func (r *FileRunner) acquire(ctx context.Context) (func(), error) {
	if !r.useLock {
		return func() {}, nil
	}

	lock, err := NewMigrationLock(r.dir, 0)
	if err != nil {
		return nil, err
	}
	lock.SetLogger(r.logger)
	if err := lock.SetRetry(r.lockRetries, r.lockBackoff); err != nil {
		return nil, err
	}
	if err := lock.AcquireLock(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := lock.ReleaseLock(); err != nil {
			r.logger.Warn("failed to release migration lock", client.Error("error", err))
		}
	}, nil
}
