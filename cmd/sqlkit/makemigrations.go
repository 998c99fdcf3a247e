package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dan-strohschein/sqlkit/migration"
	"github.com/dan-strohschein/sqlkit/schema"
)

func sampleSchema() *schema.Schema {
	return &schema.Schema{Tables: []schema.Table{{
		Name: "users",
		Columns: []schema.Column{
			{Name: "id", Type: schema.Of(schema.BIGINT), PrimaryKey: true, AutoIncrement: true},
			{Name: "email", Type: schema.VarChar(320)},
			{Name: "name", Type: schema.VarChar(255)},
			{Name: "created_at", Type: schema.Of(schema.DATETIME), Nullable: true},
		},
		Indexes: []schema.Index{{Name: "idx_users_email", Columns: []string{"email"}, Unique: true}},
	}}}
}

// handleInit creates the migration directory and, unless one exists, a
// sample schema to edit before the first makemigrations.
func handleInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dir := fs.String("dir", getDefaultMigrationsDir(), "Migration directory")
	schemaFile := fs.String("schema", getDefaultSchemaFile(), "Schema file path")
	force := fs.Bool("force", false, "Overwrite an existing schema file")
	fs.Parse(args)

	printHeader("Initialize Migrations")
	if err := migration.InitMigrationDirectory(*dir); err != nil {
		return err
	}
	printSuccess("Migration directory %s", *dir)

	if _, err := os.Stat(*schemaFile); err == nil && !*force {
		printInfo("Keeping existing schema %s (use --force to overwrite)", *schemaFile)
	} else {
		if err := schema.SaveFile(*schemaFile, sampleSchema()); err != nil {
			return err
		}
		printSuccess("Sample schema %s", *schemaFile)
	}

	fmt.Fprintln(stdout, "\nNext steps:")
	fmt.Fprintln(stdout, "  1. Edit "+*schemaFile)
	fmt.Fprintln(stdout, "  2. sqlkit makemigrations --name initial")
	fmt.Fprintln(stdout, "  3. sqlkit migrate")
	return nil
}

func handleMakeMigrations(args []string) error {
	fs := flag.NewFlagSet("makemigrations", flag.ExitOnError)
	newSchema := fs.String("new", getDefaultSchemaFile(), "Desired schema JSON file")
	snapshot := fs.String("snapshot", getDefaultSnapshotFile(), "Last recorded schema snapshot")
	dir := fs.String("dir", getDefaultMigrationsDir(), "Migration directory")
	name := fs.String("name", migration.DefaultLabel, "Migration label")
	dialect := fs.String("dialect", getDefaultDialect(), "SQL dialect: mysql, sqlite or postgres")
	fs.Parse(args)

	printHeader("Make Migrations")
	result, err := migration.MakeMigrations(migration.MakeOptions{
		NewSchemaPath: *newSchema,
		SnapshotPath:  *snapshot,
		Dir:           *dir,
		Name:          *name,
		Dialect:       *dialect,
	})
	if err != nil {
		return err
	}

	if !result.Changed() {
		printInfo("No changes detected")
		return nil
	}
	for _, op := range result.Ops {
		printInfo("%s", op.String())
	}
	printSuccess("Wrote %s", result.UpPath)
	printSuccess("Wrote %s", result.DownPath)
	return nil
}

func getDefaultSnapshotFile() string {
	if file := os.Getenv("SQLKIT_SNAPSHOT_FILE"); file != "" {
		return file
	}
	return "schema.snapshot.json"
}

// getDefaultDialect follows SQLKIT_ENGINE so generated scripts match the
// database migrate will run them against.
func getDefaultDialect() string {
	if engine := os.Getenv("SQLKIT_ENGINE"); engine != "" {
		return engine
	}
	return "sqlite"
}
