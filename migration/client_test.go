package migration

import (
	"bytes"
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/dan-strohschein/sqlkit/client"
	"github.com/dan-strohschein/sqlkit/driver"
	"github.com/dan-strohschein/sqlkit/testutil"
)

const (
	initUp   = "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL);\n"
	initDown = "DROP TABLE users;\n"
	seedUp   = "INSERT INTO users (id, name) VALUES (1, 'ada; lovelace');\nINSERT INTO users (id, name) VALUES (2, 'grace');\n"
	seedDown = "DELETE FROM users WHERE id IN (1, 2);\n"
)

func writeInitAndSeed(t *testing.T, dir string) {
	t.Helper()
	testutil.WriteFile(t, dir, "001_init.up.sql", initUp)
	testutil.WriteFile(t, dir, "001_init.down.sql", initDown)
	testutil.WriteFile(t, dir, "002_seed.up.sql", seedUp)
	testutil.WriteFile(t, dir, "002_seed.down.sql", seedDown)
}

func newSQLiteRunner(t *testing.T, dir string, opts ...Option) (*FileRunner, driver.Connection) {
	t.Helper()
	conn := testutil.NewSQLiteConn(t)
	r, err := NewFileRunner(conn, dir, opts...)
	if err != nil {
		t.Fatalf("NewFileRunner failed: %v", err)
	}
	return r, conn
}

func countUsers(t *testing.T, conn driver.Connection) int64 {
	t.Helper()
	rows, err := driver.QuerySQL(context.Background(), conn, "SELECT COUNT(*) FROM users")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return rows[0].Int64Or(0, -1)
}

func ledgerIDs(t *testing.T, r *FileRunner) []string {
	t.Helper()
	records, err := r.History().Records(context.Background())
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return ids
}

func TestNewFileRunnerValidation(t *testing.T) {
	if _, err := NewFileRunner(nil, "dir"); err == nil {
		t.Error("expected error for nil connection")
	}
	if _, err := NewFileRunner(testutil.NewMockConn(), ""); err == nil {
		t.Error("expected error for empty directory")
	}
	if _, err := NewFileRunner(testutil.NewMockConn(), "dir", WithTable("bad name")); err == nil {
		t.Error("expected error for invalid table name")
	}
}

func TestApplyAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeInitAndSeed(t, dir)
	r, conn := newSQLiteRunner(t, dir)

	applied, err := r.ApplyAll(ctx)
	if err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}
	if !reflect.DeepEqual(applied, []string{"001_init", "002_seed"}) {
		t.Errorf("expected both migrations applied, got %v", applied)
	}
	if n := countUsers(t, conn); n != 2 {
		t.Errorf("expected 2 users, got %d", n)
	}

	before, _ := r.History().Records(ctx)

	applied, err = r.ApplyAll(ctx)
	if err != nil {
		t.Fatalf("second ApplyAll failed: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected nothing applied the second time, got %v", applied)
	}
	if n := countUsers(t, conn); n != 2 {
		t.Errorf("expected seed not to run twice, got %d users", n)
	}

	after, _ := r.History().Records(ctx)
	if !reflect.DeepEqual(before, after) {
		t.Errorf("expected unchanged ledger, got %+v then %+v", before, after)
	}
}

func TestApplyAllPicksUpNewFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "001_init.up.sql", initUp)
	r, _ := newSQLiteRunner(t, dir)

	if _, err := r.ApplyAll(ctx); err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}
	testutil.WriteFile(t, dir, "002_seed.up.sql", seedUp)

	applied, err := r.ApplyAll(ctx)
	if err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}
	if !reflect.DeepEqual(applied, []string{"002_seed"}) {
		t.Errorf("expected only 002_seed, got %v", applied)
	}

	records, _ := r.History().Records(ctx)
	if records[1].Order != 2 {
		t.Errorf("expected 002_seed at order 2, got %d", records[1].Order)
	}
}

func TestRollbackOneStep(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeInitAndSeed(t, dir)
	r, conn := newSQLiteRunner(t, dir)

	if _, err := r.ApplyAll(ctx); err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}

	reverted, err := r.Rollback(ctx, 1)
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if !reflect.DeepEqual(reverted, []string{"002_seed"}) {
		t.Errorf("expected only 002_seed reverted, got %v", reverted)
	}

	// 001's down script would have dropped the table.
	if n := countUsers(t, conn); n != 0 {
		t.Errorf("expected seed rows removed, got %d", n)
	}
	if ids := ledgerIDs(t, r); !reflect.DeepEqual(ids, []string{"001_init"}) {
		t.Errorf("expected 001_init still applied, got %v", ids)
	}
}

func TestRollbackAllSteps(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeInitAndSeed(t, dir)
	r, conn := newSQLiteRunner(t, dir)

	if _, err := r.ApplyAll(ctx); err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}
	reverted, err := r.Rollback(ctx, 2)
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if !reflect.DeepEqual(reverted, []string{"002_seed", "001_init"}) {
		t.Errorf("expected newest first, got %v", reverted)
	}
	for _, name := range testutil.SQLiteTables(t, conn) {
		if name == "users" {
			t.Error("expected users table dropped")
		}
	}
	if ids := ledgerIDs(t, r); len(ids) != 0 {
		t.Errorf("expected empty ledger, got %v", ids)
	}
}

func TestRollbackInsufficientApplied(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeInitAndSeed(t, dir)
	r, conn := newSQLiteRunner(t, dir)

	if _, err := r.ApplyAll(ctx); err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}

	_, err := r.Rollback(ctx, 3)
	if !errors.Is(err, ErrInsufficient) {
		t.Fatalf("expected ErrInsufficient, got %v", err)
	}
	// Nothing ran.
	if n := countUsers(t, conn); n != 2 {
		t.Errorf("expected users untouched, got %d", n)
	}
	if ids := ledgerIDs(t, r); len(ids) != 2 {
		t.Errorf("expected ledger untouched, got %v", ids)
	}

	if _, err := r.Rollback(ctx, 0); err == nil {
		t.Error("expected error for zero steps")
	}
}

func TestRollbackMissingDownScript(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "001_init.up.sql", initUp)
	testutil.WriteFile(t, dir, "001_init.down.sql", initDown)
	testutil.WriteFile(t, dir, "002_seed.up.sql", seedUp)
	r, conn := newSQLiteRunner(t, dir)

	if _, err := r.ApplyAll(ctx); err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}

	_, err := r.Rollback(ctx, 2)
	if !errors.Is(err, ErrMissingDown) {
		t.Fatalf("expected ErrMissingDown, got %v", err)
	}
	var me *MigrationError
	if !errors.As(err, &me) || me.Details["migrationId"] != "002_seed" {
		t.Errorf("expected error for 002_seed, got %v", err)
	}
	if n := countUsers(t, conn); n != 2 {
		t.Errorf("expected nothing rolled back, got %d users", n)
	}
}

func TestApplyAllChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "001_init.up.sql", initUp)
	r, _ := newSQLiteRunner(t, dir)

	if _, err := r.ApplyAll(ctx); err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}

	testutil.WriteFile(t, dir, "001_init.up.sql", initUp+"-- edited\n")
	testutil.WriteFile(t, dir, "002_seed.up.sql", seedUp)

	applied, err := r.ApplyAll(ctx)
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected nothing applied on drift, got %v", applied)
	}
	if ids := ledgerIDs(t, r); !reflect.DeepEqual(ids, []string{"001_init"}) {
		t.Errorf("expected 002_seed blocked, got %v", ids)
	}

	entries, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !entries[0].Drift || entries[1].Applied {
		t.Errorf("unexpected status: %+v", entries)
	}

	result, err := r.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Valid || result.Conflicts[0].Type != ChecksumMismatch {
		t.Errorf("expected checksum conflict, got %+v", result)
	}
}

func TestApplyAllChecksumWarningOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "001_init.up.sql", initUp)

	var out bytes.Buffer
	logger := client.NewLogger("WARN", &out)
	r, conn := newSQLiteRunner(t, dir, WithChecksumValidation(false), WithLogger(logger))

	if _, err := r.ApplyAll(ctx); err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}
	testutil.WriteFile(t, dir, "001_init.up.sql", initUp+"-- edited\n")
	testutil.WriteFile(t, dir, "002_seed.up.sql", seedUp)

	applied, err := r.ApplyAll(ctx)
	if err != nil {
		t.Fatalf("expected drift to be tolerated, got %v", err)
	}
	if !reflect.DeepEqual(applied, []string{"002_seed"}) {
		t.Errorf("expected 002_seed applied, got %v", applied)
	}
	if n := countUsers(t, conn); n != 2 {
		t.Errorf("expected edited 001 not to be re-run, got %d users", n)
	}
	if !strings.Contains(out.String(), "applied migration changed on disk") || !strings.Contains(out.String(), "001_init") {
		t.Errorf("expected drift warning, got %q", out.String())
	}
}

func TestApplyAllFailureStopsRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "001_init.up.sql", initUp)
	testutil.WriteFile(t, dir, "002_broken.up.sql", "INSERT INTO nowhere VALUES (1);")
	testutil.WriteFile(t, dir, "003_later.up.sql", "CREATE TABLE later (id INTEGER);")
	r, conn := newSQLiteRunner(t, dir)

	applied, err := r.ApplyAll(ctx)
	if !errors.Is(err, ErrFailed) {
		t.Fatalf("expected ErrFailed, got %v", err)
	}
	if !reflect.DeepEqual(applied, []string{"001_init"}) {
		t.Errorf("expected only 001_init applied, got %v", applied)
	}
	if ids := ledgerIDs(t, r); !reflect.DeepEqual(ids, []string{"001_init"}) {
		t.Errorf("expected failed migration unrecorded, got %v", ids)
	}
	for _, name := range testutil.SQLiteTables(t, conn) {
		if name == "later" {
			t.Error("expected 003_later not to run")
		}
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeInitAndSeed(t, dir)
	testutil.WriteFile(t, dir, "003_extra.up.sql", "CREATE TABLE extra (id INTEGER);")
	r, _ := newSQLiteRunner(t, dir, WithTable("ledger"))

	if _, err := r.ApplyAll(ctx); err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}
	if _, err := r.Rollback(ctx, 1); !errors.Is(err, ErrMissingDown) {
		t.Fatalf("expected ErrMissingDown for 003_extra, got %v", err)
	}
	testutil.WriteFile(t, dir, "004_new.up.sql", "SELECT 1;")

	entries, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %+v", entries)
	}

	want := []struct {
		id      string
		applied bool
		hasDown bool
		order   int64
	}{
		{"001_init", true, true, 1},
		{"002_seed", true, true, 2},
		{"003_extra", true, false, 3},
		{"004_new", false, false, 0},
	}
	for i, w := range want {
		e := entries[i]
		if e.ID != w.id || e.Applied != w.applied || e.HasDown != w.hasDown || e.Order != w.order || e.Drift {
			t.Errorf("entry %d: expected %+v, got %+v", i, w, e)
		}
	}
}

func TestStatusMissingScript(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "001_init.up.sql", initUp)
	r, _ := newSQLiteRunner(t, dir)

	if _, err := r.ApplyAll(ctx); err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	entries, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(entries) != 1 || !entries[0].Missing || !entries[0].Applied {
		t.Errorf("expected missing applied entry, got %+v", entries)
	}

	result, _ := r.Verify(ctx)
	if result.Valid || result.Conflicts[0].Type != MissingScript {
		t.Errorf("expected missing_script conflict, got %+v", result)
	}
}

func TestApplyAllWithLock(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeInitAndSeed(t, dir)

	holder, _ := NewMigrationLock(dir, 0)
	if err := holder.AcquireLock(ctx); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	r, _ := newSQLiteRunner(t, dir, WithLock(true))
	if _, err := r.ApplyAll(ctx); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if _, err := r.Rollback(ctx, 1); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld on rollback, got %v", err)
	}

	holder.ReleaseLock()
	applied, err := r.ApplyAll(ctx)
	if err != nil {
		t.Fatalf("ApplyAll failed after release: %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied, got %v", applied)
	}
	if fileExists(dir, LockFileName) {
		t.Error("expected the runner to release its lock")
	}
}

func TestApplyAllExecutesEachStatement(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "001_two.up.sql", "CREATE TABLE a (id INT);\n-- comment;\nCREATE TABLE b (id INT);")

	conn := testutil.NewMockConn()
	r, err := NewFileRunner(conn, dir)
	if err != nil {
		t.Fatalf("NewFileRunner failed: %v", err)
	}
	if _, err := r.ApplyAll(context.Background()); err != nil {
		t.Fatalf("ApplyAll failed: %v", err)
	}

	var scripts []string
	for _, q := range conn.Executed() {
		if strings.HasPrefix(q, "CREATE TABLE a") || strings.HasPrefix(q, "CREATE TABLE b") {
			scripts = append(scripts, q)
		}
	}
	want := []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"}
	if !reflect.DeepEqual(scripts, want) {
		t.Errorf("expected %v, got %v", want, scripts)
	}
}
