package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/dan-strohschein/sqlkit/client"
	"github.com/dan-strohschein/sqlkit/driver"
	"github.com/dan-strohschein/sqlkit/migration"
)

// connFlags are shared by every command that talks to a database. Empty
// flags fall back to the SQLKIT_* environment.
type connFlags struct {
	engine   string
	host     string
	user     string
	password string
	database string
	sqlite   string
	dsn      string
	dir      string
	table    string
}

func addConnFlags(fs *flag.FlagSet) *connFlags {
	c := &connFlags{}
	fs.StringVar(&c.engine, "engine", "", "Database engine: mysql, sqlite or postgres")
	fs.StringVar(&c.host, "host", "", "MySQL host")
	fs.StringVar(&c.user, "user", "", "MySQL user")
	fs.StringVar(&c.password, "password", "", "MySQL password")
	fs.StringVar(&c.database, "database", "", "MySQL database")
	fs.StringVar(&c.sqlite, "sqlite", "", "SQLite database file")
	fs.StringVar(&c.dsn, "dsn", "", "PostgreSQL connection string")
	fs.StringVar(&c.dir, "dir", getDefaultMigrationsDir(), "Migration directory")
	fs.StringVar(&c.table, "table", migration.DefaultTable, "Ledger table name")
	return c
}

// config overlays the flags on ConfigFromEnv. --sqlite or --dsn without
// --engine select their engine.
func (c *connFlags) config() (client.Config, error) {
	cfg, err := client.ConfigFromEnv()
	if err != nil {
		return cfg, err
	}

	switch {
	case c.engine != "":
		if cfg.Engine, err = client.ParseEngine(c.engine); err != nil {
			return cfg, err
		}
	case c.sqlite != "":
		cfg.Engine = client.EngineSQLite
	case c.dsn != "":
		cfg.Engine = client.EnginePostgres
	}

	if c.host != "" {
		cfg.MySQL.Host = c.host
	}
	if c.user != "" {
		cfg.MySQL.User = c.user
	}
	if c.password != "" {
		cfg.MySQL.Password = c.password
	}
	if c.database != "" {
		cfg.MySQL.Database = c.database
	}
	if c.sqlite != "" {
		cfg.SQLite.Path = c.sqlite
	}
	if c.dsn != "" {
		cfg.Postgres.DSN = c.dsn
	}

	// One session is enough for a migration run.
	cfg.Pool = client.PoolConfig{Min: 1, Max: 1}
	return cfg, cfg.Validate()
}

// session is an open database plus the connection the runner holds.
type session struct {
	db     *client.Database
	conn   driver.Connection
	runner *migration.FileRunner
	logger client.Logger
}

func (s *session) Close() {
	s.db.Pool().Release(s.conn)
	if err := s.db.Close(); err != nil {
		s.logger.Warn("close database", client.Error("error", err))
	}
}

func openSession(ctx context.Context, c *connFlags, opts ...migration.Option) (*session, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	logger := client.NewLogger(cfg.LogLevel, stderr)

	db, err := client.Open(ctx, cfg, client.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	conn, err := db.Pool().Acquire(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	opts = append([]migration.Option{
		migration.WithTable(c.table),
		migration.WithLogger(logger),
		migration.WithLock(true),
	}, opts...)
	runner, err := migration.NewFileRunner(conn, c.dir, opts...)
	if err != nil {
		db.Pool().Release(conn)
		db.Close()
		return nil, err
	}
	return &session{db: db, conn: conn, runner: runner, logger: logger}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func handleMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	c := addConnFlags(fs)
	allowDrift := fs.Bool("allow-drift", false, "Warn instead of failing when an applied script changed")
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, c, migration.WithChecksumValidation(!*allowDrift))
	if err != nil {
		return err
	}
	defer s.Close()

	printHeader("Applying Migrations")
	applied, err := s.runner.ApplyAll(ctx)
	for _, id := range applied {
		printSuccess("%s", id)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		printInfo("Database is up to date")
		return nil
	}
	printSuccess("Applied %d migration(s)", len(applied))
	return nil
}

func handleRollback(args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	c := addConnFlags(fs)
	steps := fs.Int("steps", 1, "Number of migrations to roll back")
	force := fs.Bool("force", false, "Skip confirmation prompt")
	fs.Parse(args)

	if *steps < 1 {
		return errors.New("--steps must be at least 1")
	}
	if !*force && !promptConfirm(fmt.Sprintf("Roll back %d migration(s)?", *steps)) {
		printInfo("Cancelled")
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, c)
	if err != nil {
		return err
	}
	defer s.Close()

	printHeader("Rolling Back")
	reverted, err := s.runner.Rollback(ctx, *steps)
	for _, id := range reverted {
		printSuccess("%s", id)
	}
	if err != nil {
		return err
	}
	printSuccess("Rolled back %d migration(s)", len(reverted))
	return nil
}

func handleStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	c := addConnFlags(fs)
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, c)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.runner.Status(ctx)
	if err != nil {
		return err
	}

	printHeader("Migration Status")
	if len(entries) == 0 {
		printInfo("No migrations found in %s", c.dir)
		return nil
	}
	printTable([]string{"ID", "STATE", "ORDER", "APPLIED AT", "DOWN"}, statusRows(entries), styleStatus)

	pending := 0
	for _, e := range entries {
		if !e.Applied {
			pending++
		}
	}
	fmt.Fprintln(stdout)
	printInfo("%d applied, %d pending", len(entries)-pending, pending)
	return nil
}

func statusRows(entries []migration.StatusEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		state := "pending"
		switch {
		case e.Missing:
			state = "missing"
		case e.Drift:
			state = "drift"
		case e.Applied:
			state = "applied"
		}
		order := ""
		if e.Applied {
			order = strconv.FormatInt(e.Order, 10)
		}
		down := "no"
		if e.HasDown {
			down = "yes"
		}
		rows = append(rows, []string{e.ID, state, order, e.AppliedAt, down})
	}
	return rows
}

func styleStatus(col int, cell string) string {
	if col != 1 {
		return cell
	}
	switch cell {
	case "applied":
		return green(cell)
	case "pending":
		return yellow(cell)
	default:
		return red(cell)
	}
}

func handleVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	c := addConnFlags(fs)
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, c)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.runner.Verify(ctx)
	if err != nil {
		return err
	}

	printHeader("Verify Migrations")
	if result.Valid {
		printSuccess("%d applied, %d pending, no conflicts", len(result.AppliedMigrations), len(result.PendingMigrations))
		return nil
	}
	for _, conflict := range result.Conflicts {
		printWarning("%s %s: %s", bold(conflict.MigrationID), dim(string(conflict.Type)), conflict.Message)
	}
	return fmt.Errorf("%d conflict(s) found", len(result.Conflicts))
}

func getDefaultMigrationsDir() string {
	if dir := os.Getenv("SQLKIT_MIGRATIONS_DIR"); dir != "" {
		return dir
	}
	return "migrations"
}

func getDefaultSchemaFile() string {
	if file := os.Getenv("SQLKIT_SCHEMA_FILE"); file != "" {
		return file
	}
	return "schema.json"
}

func promptConfirm(message string) bool {
	fmt.Fprintf(stdout, "%s %s ", message, dim("[y/N]"))
	var response string
	fmt.Fscanln(stdin, &response)
	return response == "y" || response == "Y" || response == "yes"
}
