package migration

import (
	"context"
	"fmt"
	"regexp"

	"github.com/dan-strohschein/sqlkit/driver"
)

// DefaultTable is the ledger table used when none is configured.
const DefaultTable = "schema_migrations"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// History is the ledger of applied migrations, kept in a table on the
// target database. Queries use "?" placeholders; backends that need
// another style rebind them.
type History struct {
	conn  driver.Connection
	table string
}

// NewHistory returns a ledger stored in table. The name is interpolated into
// SQL, so it must be a plain or schema-qualified identifier.
func NewHistory(conn driver.Connection, table string) (*History, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid ledger table name %q", table)
	}
	return &History{conn: conn, table: table}, nil
}

// Table returns the ledger table name.
func (h *History) Table() string { return h.table }

// Ensure creates the ledger table if it does not exist.
func (h *History) Ensure(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id VARCHAR(255) NOT NULL PRIMARY KEY,
  checksum VARCHAR(64) NOT NULL,
  applied_order BIGINT NOT NULL,
  applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`, h.table)
	if _, err := driver.ExecSQL(ctx, h.conn, q); err != nil {
		return ErrLedgerFailed(h.table, "create", err)
	}
	return nil
}

// Records returns every ledger row in the order migrations were applied.
func (h *History) Records(ctx context.Context) ([]Record, error) {
	return h.query(ctx, "list", fmt.Sprintf(
		`SELECT id, checksum, applied_order, applied_at FROM %s ORDER BY applied_order ASC, id ASC`, h.table))
}

// Latest returns up to n rows, most recently applied first.
func (h *History) Latest(ctx context.Context, n int) ([]Record, error) {
	records, err := h.query(ctx, "latest", fmt.Sprintf(
		`SELECT id, checksum, applied_order, applied_at FROM %s ORDER BY applied_order DESC, id DESC`, h.table))
	if err != nil {
		return nil, err
	}
	if len(records) > n {
		records = records[:n]
	}
	return records, nil
}

// IsApplied reports whether the ledger has a row for id.
func (h *History) IsApplied(ctx context.Context, id string) (bool, error) {
	rows, err := driver.QuerySQL(ctx, h.conn,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, h.table), driver.Text(id))
	if err != nil {
		return false, ErrLedgerFailed(h.table, "lookup", err)
	}
	return len(rows) > 0, nil
}

// Record inserts a row for id with the next apply order.
func (h *History) Record(ctx context.Context, id, checksum string) (int64, error) {
	rows, err := driver.QuerySQL(ctx, h.conn,
		fmt.Sprintf(`SELECT COALESCE(MAX(applied_order), 0) FROM %s`, h.table))
	if err != nil {
		return 0, ErrLedgerFailed(h.table, "next order", err)
	}
	var next int64 = 1
	if len(rows) > 0 {
		next = rows[0].Int64Or(0, 0) + 1
	}

	if _, err := driver.ExecSQL(ctx, h.conn,
		fmt.Sprintf(`INSERT INTO %s (id, checksum, applied_order) VALUES (?, ?, ?)`, h.table),
		driver.Text(id), driver.Text(checksum), driver.Int64(next)); err != nil {
		return 0, ErrLedgerFailed(h.table, "insert", err)
	}
	return next, nil
}

// Remove deletes the row for id.
func (h *History) Remove(ctx context.Context, id string) error {
	if _, err := driver.ExecSQL(ctx, h.conn,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, h.table), driver.Text(id)); err != nil {
		return ErrLedgerFailed(h.table, "delete", err)
	}
	return nil
}

func (h *History) query(ctx context.Context, op, q string) ([]Record, error) {
	rows, err := driver.QuerySQL(ctx, h.conn, q)
	if err != nil {
		return nil, ErrLedgerFailed(h.table, op, err)
	}
	records := make([]Record, 0, len(rows))
	for _, r := range rows {
		id, err := r.String(0)
		if err != nil {
			return nil, ErrLedgerFailed(h.table, op, err)
		}
		records = append(records, Record{
			ID:        id,
			Checksum:  r.StringOr(1, ""),
			Order:     r.Int64Or(2, 0),
			AppliedAt: r.StringOr(3, ""),
		})
	}
	return records, nil
}
