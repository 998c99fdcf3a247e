// Command sqlkit applies, rolls back and generates SQL migrations.
package main

import (
	"fmt"
	"os"

	"github.com/dan-strohschein/sqlkit/client"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}

	var err error
	switch command := args[0]; command {
	case "init":
		err = handleInit(args[1:])
	case "migrate":
		err = handleMigrate(args[1:])
	case "rollback":
		err = handleRollback(args[1:])
	case "status":
		err = handleStatus(args[1:])
	case "verify":
		err = handleVerify(args[1:])
	case "makemigrations":
		err = handleMakeMigrations(args[1:])
	case "version", "-v", "--version":
		fmt.Fprintf(stdout, "sqlkit v%s\n", client.VersionString())
	case "help", "-h", "--help":
		printUsage()
	default:
		printError("Unknown command: %s", command)
		printUsage()
		return 1
	}

	if err != nil {
		reportError(err)
		return 1
	}
	return 0
}

// reportError prints typed errors in their short form. SQLKIT_DEBUG adds
// details and causes.
func reportError(err error) {
	printError("%s", client.FormatError(err, os.Getenv("SQLKIT_DEBUG") != ""))
}

func printUsage() {
	fmt.Fprintln(stdout, bold(cyan("sqlkit"))+" - SQL schema migrations for MySQL, SQLite and PostgreSQL")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Usage:")
	fmt.Fprintln(stdout, "  sqlkit "+yellow("<command>")+" [options]")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Commands:")
	fmt.Fprintln(stdout, "  "+green("init")+"             Create the migration directory and a sample schema")
	fmt.Fprintln(stdout, "  "+green("migrate")+"          Apply pending migrations")
	fmt.Fprintln(stdout, "  "+green("rollback")+"         Roll back the most recent migrations (--steps n)")
	fmt.Fprintln(stdout, "  "+green("status")+"           Show applied and pending migrations")
	fmt.Fprintln(stdout, "  "+green("verify")+"           Check applied scripts against recorded checksums")
	fmt.Fprintln(stdout, "  "+green("makemigrations")+"   Diff a schema against its snapshot and write scripts")
	fmt.Fprintln(stdout, "  "+green("version")+"          Show version information")
	fmt.Fprintln(stdout, "  "+green("help")+"             Show this help message")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Run '"+cyan("sqlkit <command> --help")+"' for the options of a command.")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Environment Variables:")
	fmt.Fprintln(stdout, "  SQLKIT_ENGINE            mysql, sqlite or postgres (default: sqlite)")
	fmt.Fprintln(stdout, "  SQLKIT_MYSQL_HOST        MySQL host, host:port or tcp://host:port")
	fmt.Fprintln(stdout, "  SQLKIT_MYSQL_USER        MySQL user")
	fmt.Fprintln(stdout, "  SQLKIT_MYSQL_PASSWORD    MySQL password")
	fmt.Fprintln(stdout, "  SQLKIT_MYSQL_DATABASE    MySQL database")
	fmt.Fprintln(stdout, "  SQLKIT_SQLITE_PATH       SQLite file (default: app.db)")
	fmt.Fprintln(stdout, "  SQLKIT_POSTGRES_DSN      PostgreSQL connection string")
	fmt.Fprintln(stdout, "  SQLKIT_LOG_LEVEL         DEBUG, INFO, WARN or ERROR (default: INFO)")
	fmt.Fprintln(stdout, "  SQLKIT_MIGRATIONS_DIR    Migration directory (default: migrations)")
	fmt.Fprintln(stdout, "  SQLKIT_SCHEMA_FILE       Schema file (default: schema.json)")
	fmt.Fprintln(stdout, "  SQLKIT_SNAPSHOT_FILE     Schema snapshot (default: schema.snapshot.json)")
	fmt.Fprintln(stdout, "  SQLKIT_LOCK_TIMEOUT      Age after which a lock file is stale (default: 1h)")
	fmt.Fprintln(stdout, "  NO_COLOR                 Disable colored output")
}
