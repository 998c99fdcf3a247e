package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/dan-strohschein/sqlkit/driver"
	"github.com/dan-strohschein/sqlkit/driver/sqlite"
)

// NewSQLiteConfig returns a config for a fresh database file under t.TempDir().
func NewSQLiteConfig(t testing.TB) sqlite.Config {
	t.Helper()
	return sqlite.Config{Path: filepath.Join(t.TempDir(), "test.db")}
}

// NewSQLiteConn opens a connection to a fresh SQLite database that is closed
// when the test ends.
func NewSQLiteConn(t testing.TB) driver.Connection {
	t.Helper()

	conn, err := sqlite.Open(context.Background(), NewSQLiteConfig(t))
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// WriteFile writes content to dir/name, failing the test on error.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// SQLiteTables lists user tables in a SQLite database, sorted by name.
func SQLiteTables(t testing.TB, conn driver.Connection) []string {
	t.Helper()

	rows, err := driver.QuerySQL(context.Background(), conn,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		t.Fatalf("Failed to list tables: %v", err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.StringOr(0, ""))
	}
	return names
}

// SQLiteColumns lists the columns of table in declaration order.
func SQLiteColumns(t testing.TB, conn driver.Connection, table string) []string {
	t.Helper()

	rows, err := driver.QuerySQL(context.Background(), conn,
		`SELECT name FROM pragma_table_info(?) ORDER BY cid`, driver.Text(table))
	if err != nil {
		t.Fatalf("Failed to list columns of %s: %v", table, err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.StringOr(0, ""))
	}
	return names
}

// SQLiteIndexes lists the explicitly created indexes of table, sorted.
func SQLiteIndexes(t testing.TB, conn driver.Connection, table string) []string {
	t.Helper()

	rows, err := driver.QuerySQL(context.Background(), conn,
		`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND sql IS NOT NULL`, driver.Text(table))
	if err != nil {
		t.Fatalf("Failed to list indexes of %s: %v", table, err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.StringOr(0, ""))
	}
	sort.Strings(names)
	return names
}
