package migration

import (
	"context"

	"github.com/dan-strohschein/sqlkit/driver"
)

// MigrationDirection represents the direction of a migration.
type MigrationDirection string

const (
	// Up applies a migration forward.
	Up MigrationDirection = "up"
	// Down rolls back a migration.
	Down MigrationDirection = "down"
)

// Migration is a code-defined migration run by a Runner.
type Migration interface {
	ID() string
	Up(ctx context.Context, conn driver.Connection) error
	Down(ctx context.Context, conn driver.Connection) error
}

// MigrationFunc is the signature of one direction of a code migration.
type MigrationFunc func(ctx context.Context, conn driver.Connection) error

type funcMigration struct {
	id       string
	up, down MigrationFunc
}

// New builds a Migration from plain functions. down may be nil.
func New(id string, up, down MigrationFunc) Migration {
	return &funcMigration{id: id, up: up, down: down}
}

func (m *funcMigration) ID() string { return m.id }

func (m *funcMigration) Up(ctx context.Context, conn driver.Connection) error {
	if m.up == nil {
		return nil
	}
	return m.up(ctx, conn)
}

func (m *funcMigration) Down(ctx context.Context, conn driver.Connection) error {
	if m.down == nil {
		return ErrMissingDownScript(m.id)
	}
	return m.down(ctx, conn)
}

// Pair is one migration discovered on disk: an up script and, optionally,
// the matching down script.
type Pair struct {
	// ID is the file name with the direction suffix removed.
	ID string `json:"id"`

	// UpPath is the path of the <id>.up.sql file.
	UpPath string `json:"upPath"`

	// DownPath is empty when no <id>.down.sql exists.
	DownPath string `json:"downPath,omitempty"`

	// Checksum is the SHA-256 hex digest of the up script.
	Checksum string `json:"checksum"`
}

// HasDown reports whether a down script was found.
func (p Pair) HasDown() bool { return p.DownPath != "" }

// Record is one row of the ledger table.
type Record struct {
	ID        string `json:"id"`
	Checksum  string `json:"checksum"`
	Order     int64  `json:"appliedOrder"`
	AppliedAt string `json:"appliedAt"`
}

// StatusEntry is one line of a FileRunner status report.
type StatusEntry struct {
	ID string `json:"id"`

	// Applied is true when the ledger has a row for ID.
	Applied bool `json:"applied"`

	// Checksum is the digest of the up script on disk. Empty when the file
	// is gone.
	Checksum string `json:"checksum,omitempty"`

	// StoredChecksum is the digest recorded when the migration was applied.
	StoredChecksum string `json:"storedChecksum,omitempty"`

	Order     int64  `json:"appliedOrder,omitempty"`
	AppliedAt string `json:"appliedAt,omitempty"`

	HasDown bool `json:"hasDown"`

	// Missing is true for a ledger row whose up script no longer exists.
	Missing bool `json:"missing,omitempty"`

	// Drift is true when an applied up script no longer matches its
	// recorded checksum.
	Drift bool `json:"drift,omitempty"`
}

// ConflictType classifies a problem found by MigrationValidator.
type ConflictType string

const (
	ChecksumMismatch ConflictType = "checksum_mismatch"
	MissingScript    ConflictType = "missing_script" // applied, but the up script is gone
	OrderConflict    ConflictType = "order_conflict" // pending, but sorts before an applied id
)

// MigrationConflict is one validation finding. Expected and Actual carry the
// stored and on-disk checksums for a mismatch.
type MigrationConflict struct {
	Type        ConflictType `json:"type"`
	MigrationID string       `json:"migrationId"`
	Message     string       `json:"message"`
	Expected    string       `json:"expected,omitempty"`
	Actual      string       `json:"actual,omitempty"`
}

// ValidationResult is the outcome of MigrationValidator.Validate.
type ValidationResult struct {
	Valid     bool                `json:"valid"`
	Conflicts []MigrationConflict `json:"conflicts"`

	// PendingMigrations are scanned ids without a ledger row, in id order.
	PendingMigrations []string `json:"pendingMigrations"`

	// AppliedMigrations are ledger ids in apply order.
	AppliedMigrations []string `json:"appliedMigrations"`
}
