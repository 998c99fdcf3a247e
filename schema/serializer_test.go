package schema

import (
	"errors"
	"strings"
	"testing"
)

func TestGeneratorUsersScenario(t *testing.T) {
	ops, err := Diff(&Schema{}, &Schema{Tables: []Table{usersTable()}})
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	for _, dialect := range []string{"mysql", "sqlite", "postgres"} {
		t.Run(dialect, func(t *testing.T) {
			gen, err := GeneratorFor(dialect)
			if err != nil {
				t.Fatalf("GeneratorFor failed: %v", err)
			}

			up := gen.Up(ops)
			if strings.Count(up, "CREATE TABLE users (") != 1 {
				t.Errorf("expected a single CREATE TABLE users, got:\n%s", up)
			}
			if strings.Contains(up, "DROP") {
				t.Errorf("expected no DROP in up script, got:\n%s", up)
			}

			down := gen.Down(ops)
			if !strings.Contains(down, "DROP TABLE users") {
				t.Errorf("expected DROP TABLE users in down script, got:\n%s", down)
			}
		})
	}
}

func TestGeneratorMySQLCreateTable(t *testing.T) {
	gen, _ := GeneratorFor("mysql")
	def := "0"
	table := usersTable()
	table.Columns = append(table.Columns, Column{Name: "score", Type: Of(DOUBLE), Nullable: true, Default: &def})
	table.Indexes = []Index{{Name: "idx_users_name", Columns: []string{"name"}, Unique: true}}

	up := gen.Up([]Op{CreateTable{Table: table}})
	want := "CREATE TABLE users (\n" +
		"  id BIGINT NOT NULL AUTO_INCREMENT,\n" +
		"  name VARCHAR(255) NOT NULL,\n" +
		"  score DOUBLE DEFAULT 0,\n" +
		"  PRIMARY KEY (id)\n" +
		");\n\n" +
		"CREATE UNIQUE INDEX idx_users_name ON users (name);\n"
	if up != want {
		t.Errorf("unexpected mysql DDL:\n%s\nwant:\n%s", up, want)
	}
}

func TestGeneratorSQLiteInlinePrimaryKey(t *testing.T) {
	gen, _ := GeneratorFor("sqlite")
	up := gen.Up([]Op{CreateTable{Table: usersTable()}})
	if !strings.Contains(up, "id INTEGER PRIMARY KEY AUTOINCREMENT") {
		t.Errorf("expected inline autoincrement key, got:\n%s", up)
	}
	if strings.Contains(up, "PRIMARY KEY (") {
		t.Errorf("expected no table-level key, got:\n%s", up)
	}
}

func TestGeneratorPostgresIdentity(t *testing.T) {
	gen, _ := GeneratorFor("postgres")
	up := gen.Up([]Op{CreateTable{Table: usersTable()}})
	if !strings.Contains(up, "id BIGINT NOT NULL GENERATED BY DEFAULT AS IDENTITY") {
		t.Errorf("expected identity column, got:\n%s", up)
	}
}

func TestGeneratorDownIsReversedInverse(t *testing.T) {
	ops := []Op{
		AddColumn{Table: "posts", Column: Column{Name: "title", Type: VarChar(200), Nullable: true}},
		CreateIndex{Table: "posts", Index: Index{Name: "idx_title", Columns: []string{"title"}}},
	}

	tests := []struct {
		dialect string
		up      string
		down    string
	}{
		{
			"mysql",
			"ALTER TABLE posts ADD COLUMN title VARCHAR(200);\n\nCREATE INDEX idx_title ON posts (title);\n",
			"DROP INDEX idx_title ON posts;\n\nALTER TABLE posts DROP COLUMN title;\n",
		},
		{
			"sqlite",
			"ALTER TABLE posts ADD COLUMN title VARCHAR(200);\n\nCREATE INDEX idx_title ON posts (title);\n",
			"DROP INDEX idx_title;\n\nALTER TABLE posts DROP COLUMN title;\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			gen, _ := GeneratorFor(tt.dialect)
			if got := gen.Up(ops); got != tt.up {
				t.Errorf("up: expected %q, got %q", tt.up, got)
			}
			if got := gen.Down(ops); got != tt.down {
				t.Errorf("down: expected %q, got %q", tt.down, got)
			}
		})
	}
}

func TestGeneratorDropTableDownRecreates(t *testing.T) {
	gen, _ := GeneratorFor("mysql")
	ops := []Op{DropTable{Table: usersTable()}}

	if up := gen.Up(ops); up != "DROP TABLE users;\n" {
		t.Errorf("expected DROP TABLE users, got %q", up)
	}
	if down := gen.Down(ops); !strings.Contains(down, "CREATE TABLE users (") || !strings.Contains(down, "name VARCHAR(255)") {
		t.Errorf("expected down to recreate users from the carried definition, got:\n%s", down)
	}
}

func TestGeneratorQuotesIdentifiers(t *testing.T) {
	table := Table{Name: "order items", Columns: []Column{{Name: "unit-price", Type: Of(DOUBLE), Nullable: true}}}

	mysql, _ := GeneratorFor("mysql")
	if up := mysql.Up([]Op{CreateTable{Table: table}}); !strings.Contains(up, "CREATE TABLE `order items`") || !strings.Contains(up, "`unit-price` DOUBLE") {
		t.Errorf("expected backtick quoting, got:\n%s", up)
	}

	sqlite, _ := GeneratorFor("sqlite")
	if up := sqlite.Up([]Op{CreateTable{Table: table}}); !strings.Contains(up, `CREATE TABLE "order items"`) || !strings.Contains(up, `"unit-price" REAL`) {
		t.Errorf("expected double-quote quoting, got:\n%s", up)
	}
}

func TestGeneratorCoversEveryBaseType(t *testing.T) {
	for _, dialect := range []string{"mysql", "sqlite", "postgres"} {
		gen, _ := GeneratorFor(dialect)
		for _, b := range BaseTypes() {
			ct := Of(b)
			if b == VARCHAR {
				ct = VarChar(10)
			}
			up := gen.Up([]Op{AddColumn{Table: "t", Column: Column{Name: "c", Type: ct, Nullable: true}}})
			if !strings.HasPrefix(up, "ALTER TABLE t ADD COLUMN c ") {
				t.Errorf("%s/%s: unexpected output %q", dialect, b, up)
			}
		}
	}
}

func TestGeneratorEmptyOps(t *testing.T) {
	gen, _ := GeneratorFor("sqlite")
	if up := gen.Up(nil); up != "" {
		t.Errorf("expected empty script, got %q", up)
	}
}

func TestGeneratorForUnsupportedDialect(t *testing.T) {
	_, err := GeneratorFor("oracle")
	if !errors.Is(err, ErrUnsupportedDialect) {
		t.Errorf("expected ErrUnsupportedDialect, got %v", err)
	}

	gen, err := GeneratorFor("PostgreSQL")
	if err != nil {
		t.Fatalf("expected postgresql alias to work: %v", err)
	}
	if gen.Dialect() != Postgres {
		t.Errorf("expected postgres, got %s", gen.Dialect())
	}
}

func TestGeneratorSQLiteUniqueColumn(t *testing.T) {
	gen, _ := GeneratorFor("sqlite")
	col := Column{Name: "email", Type: VarChar(100), Nullable: true, Unique: true}
	ops := []Op{AddColumn{Table: "users", Column: col}}

	wantUp := "ALTER TABLE users ADD COLUMN email VARCHAR(100);\n\n" +
		"CREATE UNIQUE INDEX users_email_key ON users (email);\n"
	if got := gen.Up(ops); got != wantUp {
		t.Errorf("up: expected %q, got %q", wantUp, got)
	}
	wantDown := "DROP INDEX users_email_key;\n\nALTER TABLE users DROP COLUMN email;\n"
	if got := gen.Down(ops); got != wantDown {
		t.Errorf("down: expected %q, got %q", wantDown, got)
	}

	table := usersTable()
	table.Columns = append(table.Columns, col)
	up := gen.Up([]Op{CreateTable{Table: table}})
	if strings.Contains(up, "UNIQUE,") || !strings.Contains(up, "CREATE UNIQUE INDEX users_email_key ON users (email);") {
		t.Errorf("expected a named unique index instead of an inline constraint, got:\n%s", up)
	}

	mysql, _ := GeneratorFor("mysql")
	if got := mysql.Up(ops); got != "ALTER TABLE users ADD COLUMN email VARCHAR(100) UNIQUE;\n" {
		t.Errorf("expected inline UNIQUE on mysql, got %q", got)
	}
}

func TestGeneratorIndexedColumnDrop(t *testing.T) {
	from := &Schema{Tables: []Table{{
		Name:    "users",
		Columns: []Column{{Name: "id", Type: Of(INT)}, {Name: "email", Type: VarChar(100), Nullable: true}},
		Indexes: []Index{{Name: "idx_email", Columns: []string{"email"}}},
	}}}
	to := &Schema{Tables: []Table{{Name: "users", Columns: []Column{{Name: "id", Type: Of(INT)}}}}}

	ops, err := Diff(from, to)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	gen, _ := GeneratorFor("mysql")
	wantUp := "DROP INDEX idx_email ON users;\n\nALTER TABLE users DROP COLUMN email;\n"
	if got := gen.Up(ops); got != wantUp {
		t.Errorf("up: expected %q, got %q", wantUp, got)
	}
	wantDown := "ALTER TABLE users ADD COLUMN email VARCHAR(100);\n\nCREATE INDEX idx_email ON users (email);\n"
	if got := gen.Down(ops); got != wantDown {
		t.Errorf("down: expected %q, got %q", wantDown, got)
	}
}

func TestGeneratorCheck(t *testing.T) {
	def := "0"
	tests := []struct {
		name    string
		dialect string
		op      Op
		wantErr bool
	}{
		{"nullable add", "sqlite", AddColumn{Table: "t", Column: Column{Name: "c", Type: Of(INT), Nullable: true}}, false},
		{"not null with default", "sqlite", AddColumn{Table: "t", Column: Column{Name: "c", Type: Of(INT), Default: &def}}, false},
		{"not null without default on sqlite", "sqlite", AddColumn{Table: "t", Column: Column{Name: "c", Type: Of(INT)}}, true},
		{"not null without default on mysql", "mysql", AddColumn{Table: "t", Column: Column{Name: "c", Type: Of(INT)}}, false},
		{"drop of not null column on sqlite", "sqlite", DropColumn{Table: "t", Column: Column{Name: "c", Type: Of(INT)}}, true},
		{"primary key add", "postgres", AddColumn{Table: "t", Column: Column{Name: "c", Type: Of(INT), PrimaryKey: true}}, true},
		{"primary key drop", "mysql", DropColumn{Table: "t", Column: Column{Name: "c", Type: Of(INT), PrimaryKey: true}}, true},
		{"identity on postgres", "postgres", AddColumn{Table: "t", Column: Column{Name: "c", Type: Of(BIGINT), AutoIncrement: true}}, false},
		{"auto increment on mysql", "mysql", AddColumn{Table: "t", Column: Column{Name: "c", Type: Of(BIGINT), AutoIncrement: true}}, true},
		{"unique add", "sqlite", AddColumn{Table: "t", Column: Column{Name: "c", Type: Of(INT), Nullable: true, Unique: true}}, false},
		{"create table", "sqlite", CreateTable{Table: usersTable()}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, _ := GeneratorFor(tt.dialect)
			err := gen.Check([]Op{tt.op})
			if tt.wantErr && !errors.Is(err, ErrUnsupportedChange) {
				t.Errorf("expected ErrUnsupportedChange, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}
