package migration

import (
	"context"

	"github.com/dan-strohschein/sqlkit/driver"
)

// Runner runs code-defined migrations in registration order. It keeps no
// ledger, so running it twice runs every migration twice; make the
// migrations idempotent or run the Runner once inside a transaction.
type Runner struct {
	conn       driver.Connection
	migrations []Migration
}

// NewRunner creates a runner bound to conn.
func NewRunner(conn driver.Connection) *Runner {
	return &Runner{conn: conn}
}

// Add appends migrations. Registration order is execution order; ids are
// not sorted.
func (r *Runner) Add(migrations ...Migration) *Runner {
	r.migrations = append(r.migrations, migrations...)
	return r
}

// Migrations returns the registered migrations.
func (r *Runner) Migrations() []Migration {
	out := make([]Migration, len(r.migrations))
	copy(out, r.migrations)
	return out
}

// RunAll calls Up on every migration in order and stops at the first error.
func (r *Runner) RunAll(ctx context.Context) error {
	for _, m := range r.migrations {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.Up(ctx, r.conn); err != nil {
			return ErrMigrationFailed(m.ID(), err)
		}
	}
	return nil
}
