package migration

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dan-strohschein/sqlkit/schema"
)

// IDTimeFormat is the timestamp prefix of generated migration ids.
const IDTimeFormat = "2006_01_02_150405"

// DefaultLabel names generated migrations when no name is given.
const DefaultLabel = "auto"

// MakeOptions configures MakeMigrations.
type MakeOptions struct {
	// NewSchemaPath is the desired schema snapshot. Required.
	NewSchemaPath string

	// SnapshotPath is the last recorded schema. A missing file means an
	// empty schema. It is overwritten with the new schema on success.
	SnapshotPath string

	// Dir receives the generated scripts.
	Dir string

	// Name labels the migration. Defaults to "auto".
	Name string

	// Dialect selects the SQL generator: mysql, sqlite or postgres.
	Dialect string

	// Now stamps the migration id. Defaults to time.Now.
	Now func() time.Time
}

// MakeResult describes what MakeMigrations produced.
type MakeResult struct {
	ID       string
	Ops      []schema.Op
	UpPath   string
	DownPath string
}

// Changed reports whether scripts were written.
func (r *MakeResult) Changed() bool { return len(r.Ops) > 0 }

var labelUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeLabel maps a migration name onto [A-Za-z0-9_-].
func SanitizeLabel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultLabel
	}
	return labelUnsafe.ReplaceAllString(name, "_")
}

// MakeMigrations diffs the snapshot against the new schema, rewrites the
// snapshot, and writes an up/down script pair when anything changed.
func MakeMigrations(opts MakeOptions) (*MakeResult, error) {
	if opts.NewSchemaPath == "" {
		return nil, fmt.Errorf("new schema path cannot be empty")
	}
	if opts.SnapshotPath == "" {
		return nil, fmt.Errorf("snapshot path cannot be empty")
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("directory path cannot be empty")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	gen, err := schema.GeneratorFor(opts.Dialect)
	if err != nil {
		return nil, err
	}

	oldSchema, err := schema.LoadFileOrEmpty(opts.SnapshotPath)
	if err != nil {
		return nil, err
	}
	newSchema, err := schema.LoadFile(opts.NewSchemaPath)
	if err != nil {
		return nil, err
	}

	ops, err := schema.Diff(oldSchema, newSchema)
	if err != nil {
		return nil, err
	}
	if err := gen.Check(ops); err != nil {
		return nil, err
	}

	result := &MakeResult{
		ID:  now().Format(IDTimeFormat) + "_" + SanitizeLabel(opts.Name),
		Ops: ops,
	}

	// Refuse an id collision before touching the snapshot.
	if len(ops) > 0 {
		for _, suffix := range []string{UpSuffix, DownSuffix} {
			if fileExists(opts.Dir, result.ID+suffix) {
				return nil, ErrDuplicateMigration(result.ID, result.ID+suffix)
			}
		}
	}

	if err := schema.SaveFile(opts.SnapshotPath, newSchema); err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return result, nil
	}

	header := scriptHeader(result.ID, gen.Dialect(), ops)
	result.UpPath, result.DownPath, err = WriteScripts(opts.Dir, result.ID,
		header+gen.Up(ops), header+gen.Down(ops))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func scriptHeader(id string, dialect schema.Dialect, ops []schema.Op) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- %s (%s)\n", id, dialect)
	for _, op := range ops {
		fmt.Fprintf(&b, "--   %s\n", op)
	}
	b.WriteString("\n")
	return b.String()
}
