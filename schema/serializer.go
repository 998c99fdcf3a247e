package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect selects the SQL flavour a Generator emits.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect accepts dialect names case-insensitively.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	}
	return "", errUnsupportedDialect(s)
}

// Generator renders ops as a SQL script. Up translates each op in order;
// Down emits the inverse of each op in reverse order. Check reports ops the
// dialect cannot express in one of the two directions; Up and Down assume it
// passed.
type Generator interface {
	Dialect() Dialect
	Check(ops []Op) error
	Up(ops []Op) string
	Down(ops []Op) string
}

// GeneratorFor returns the generator for the named dialect.
func GeneratorFor(dialect string) (Generator, error) {
	d, err := ParseDialect(dialect)
	if err != nil {
		return nil, err
	}
	return &sqlGenerator{dialect: d}, nil
}

type sqlGenerator struct {
	dialect Dialect
}

func (g *sqlGenerator) Dialect() Dialect { return g.dialect }

func (g *sqlGenerator) Check(ops []Op) error {
	for _, op := range ops {
		var c Column
		switch o := op.(type) {
		case AddColumn:
			c = o.Column
		case DropColumn:
			c = o.Column
		default:
			continue
		}
		// A dropped column comes back as an add in the down script.
		switch {
		case c.PrimaryKey:
			return errUnsupportedChange(g.dialect, op, "primary key columns can only be set in CREATE TABLE")
		case c.AutoIncrement && g.dialect != Postgres:
			return errUnsupportedChange(g.dialect, op, "auto-increment columns can only be set in CREATE TABLE")
		case g.dialect == SQLite && !c.Nullable && c.Default == nil:
			return errUnsupportedChange(g.dialect, op, "an added NOT NULL column needs a default")
		}
	}
	return nil
}

func (g *sqlGenerator) Up(ops []Op) string {
	var stmts []string
	for _, op := range ops {
		stmts = append(stmts, g.render(op)...)
	}
	return joinStatements(stmts)
}

func (g *sqlGenerator) Down(ops []Op) string {
	var stmts []string
	for i := len(ops) - 1; i >= 0; i-- {
		stmts = append(stmts, g.render(ops[i].Inverse())...)
	}
	return joinStatements(stmts)
}

func joinStatements(stmts []string) string {
	if len(stmts) == 0 {
		return ""
	}
	return strings.Join(stmts, "\n\n") + "\n"
}

// render returns the statements for one op, each terminated by ";".
func (g *sqlGenerator) render(op Op) []string {
	switch o := op.(type) {
	case CreateTable:
		stmts := []string{g.createTable(&o.Table)}
		for _, c := range o.Table.Columns {
			if g.sqliteUnique(c) {
				stmts = append(stmts, g.createIndex(o.Table.Name, uniqueIndex(o.Table.Name, c.Name)))
			}
		}
		for _, ix := range o.Table.Indexes {
			stmts = append(stmts, g.createIndex(o.Table.Name, ix))
		}
		return stmts
	case DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s;", g.quote(o.Table.Name))}
	case AddColumn:
		stmts := []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", g.quote(o.Table), g.columnDef(o.Column, false))}
		if g.sqliteUnique(o.Column) {
			stmts = append(stmts, g.createIndex(o.Table, uniqueIndex(o.Table, o.Column.Name)))
		}
		return stmts
	case DropColumn:
		var stmts []string
		if g.sqliteUnique(o.Column) {
			stmts = append(stmts, g.dropIndex(o.Table, uniqueIndex(o.Table, o.Column.Name)))
		}
		return append(stmts, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", g.quote(o.Table), g.quote(o.Column.Name)))
	case CreateIndex:
		return []string{g.createIndex(o.Table, o.Index)}
	case DropIndex:
		return []string{g.dropIndex(o.Table, o.Index)}
	default:
		panic(fmt.Sprintf("schema: unhandled op %T", op))
	}
}

// SQLite can neither add nor drop a column with an inline UNIQUE constraint,
// so unique columns get a named index there instead.
func (g *sqlGenerator) sqliteUnique(c Column) bool {
	return g.dialect == SQLite && c.Unique && !c.PrimaryKey
}

func uniqueIndex(table, column string) Index {
	return Index{Name: table + "_" + column + "_key", Columns: []string{column}, Unique: true}
}

func (g *sqlGenerator) createTable(t *Table) string {
	var pk []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	// SQLite only honours AUTOINCREMENT on an inline INTEGER PRIMARY KEY.
	inlinePK := g.dialect == SQLite && len(pk) == 1 && t.FindColumn(pk[0]).AutoIncrement

	lines := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		lines = append(lines, "  "+g.columnDef(c, inlinePK))
	}
	if len(pk) > 0 && !inlinePK {
		lines = append(lines, fmt.Sprintf("  PRIMARY KEY (%s)", g.quoteList(pk)))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n);", g.quote(t.Name), strings.Join(lines, ",\n"))
}

func (g *sqlGenerator) dropIndex(table string, ix Index) string {
	if g.dialect == MySQL {
		return fmt.Sprintf("DROP INDEX %s ON %s;", g.quote(ix.Name), g.quote(table))
	}
	return fmt.Sprintf("DROP INDEX %s;", g.quote(ix.Name))
}

func (g *sqlGenerator) createIndex(table string, ix Index) string {
	unique := ""
	if ix.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s);", unique, g.quote(ix.Name), g.quote(table), g.quoteList(ix.Columns))
}

// columnDef renders "name TYPE [constraints]". inlinePK is set when the
// primary key is declared on the column itself.
func (g *sqlGenerator) columnDef(c Column, inlinePK bool) string {
	var b strings.Builder
	b.WriteString(g.quote(c.Name))
	b.WriteByte(' ')

	if inlinePK && c.PrimaryKey {
		b.WriteString("INTEGER PRIMARY KEY AUTOINCREMENT")
	} else {
		b.WriteString(g.columnType(c.Type))
		if !c.Nullable || c.PrimaryKey {
			b.WriteString(" NOT NULL")
		}
		if c.AutoIncrement {
			switch g.dialect {
			case MySQL:
				b.WriteString(" AUTO_INCREMENT")
			case Postgres:
				b.WriteString(" GENERATED BY DEFAULT AS IDENTITY")
			}
		}
	}

	if c.Unique && !c.PrimaryKey && g.dialect != SQLite {
		b.WriteString(" UNIQUE")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(*c.Default)
	}
	return b.String()
}

func (g *sqlGenerator) columnType(t ColumnType) string {
	switch t.Base {
	case INT:
		return "INTEGER"
	case BIGINT:
		if g.dialect == SQLite {
			return "INTEGER"
		}
		return "BIGINT"
	case DOUBLE:
		switch g.dialect {
		case SQLite:
			return "REAL"
		case Postgres:
			return "DOUBLE PRECISION"
		}
		return "DOUBLE"
	case BOOL:
		switch g.dialect {
		case MySQL:
			return "TINYINT(1)"
		case SQLite:
			return "INTEGER"
		}
		return "BOOLEAN"
	case VARCHAR:
		return fmt.Sprintf("VARCHAR(%d)", t.Size)
	case TEXT:
		return "TEXT"
	case DATETIME:
		if g.dialect == Postgres {
			return "TIMESTAMP"
		}
		return "DATETIME"
	default:
		panic(fmt.Sprintf("schema: unhandled base type %q", t.Base))
	}
}

var bareIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quote leaves plain identifiers bare and quotes everything else.
func (g *sqlGenerator) quote(name string) string {
	if bareIdent.MatchString(name) {
		return name
	}
	if g.dialect == MySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (g *sqlGenerator) quoteList(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = g.quote(n)
	}
	return strings.Join(out, ", ")
}
