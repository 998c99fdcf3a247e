// Package schema describes table structures, diffs two of them into
// reversible operations and renders those operations as dialect SQL.
package schema

import (
	"encoding/json"
	"fmt"
)

// BaseType is the column type tag used in snapshots.
type BaseType string

const (
	INT      BaseType = "int"
	BIGINT   BaseType = "bigint"
	DOUBLE   BaseType = "double"
	BOOL     BaseType = "bool"
	VARCHAR  BaseType = "varchar"
	TEXT     BaseType = "text"
	DATETIME BaseType = "datetime"
)

// BaseTypes lists every tag. Generators are tested against it.
func BaseTypes() []BaseType {
	return []BaseType{INT, BIGINT, DOUBLE, BOOL, VARCHAR, TEXT, DATETIME}
}

// Valid reports whether b is a known tag.
func (b BaseType) Valid() bool {
	switch b {
	case INT, BIGINT, DOUBLE, BOOL, VARCHAR, TEXT, DATETIME:
		return true
	}
	return false
}

// ColumnType is a base tag plus the size parameter sized types take.
type ColumnType struct {
	Base BaseType `json:"base"`
	Size int      `json:"size,omitempty"` // VARCHAR(n)
}

// Of returns an unsized type.
func Of(base BaseType) ColumnType { return ColumnType{Base: base} }

// VarChar returns VARCHAR(n).
func VarChar(n int) ColumnType { return ColumnType{Base: VARCHAR, Size: n} }

// UnmarshalJSON rejects unknown base tags.
func (t *ColumnType) UnmarshalJSON(data []byte) error {
	var raw struct {
		Base BaseType `json:"base"`
		Size int      `json:"size"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Base.Valid() {
		return errUnknownType(string(raw.Base))
	}
	t.Base = raw.Base
	t.Size = raw.Size
	return nil
}

func (t ColumnType) String() string {
	if t.Size > 0 {
		return fmt.Sprintf("%s(%d)", t.Base, t.Size)
	}
	return string(t.Base)
}

// Column is one column definition. Default holds a raw SQL literal such as
// "0", "'text'" or "CURRENT_TIMESTAMP".
type Column struct {
	Name          string     `json:"name"`
	Type          ColumnType `json:"type"`
	Nullable      bool       `json:"nullable"`
	PrimaryKey    bool       `json:"primary_key"`
	AutoIncrement bool       `json:"auto_increment"`
	Unique        bool       `json:"unique"`
	Default       *string    `json:"default,omitempty"`
}

// UnmarshalJSON defaults nullable to true when the key is absent.
func (c *Column) UnmarshalJSON(data []byte) error {
	type plain Column
	raw := struct {
		*plain
		Nullable *bool `json:"nullable"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Nullable = raw.Nullable == nil || *raw.Nullable
	return nil
}

// Index is a named index over one or more columns.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// Table owns ordered columns and indexes.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Indexes []Index  `json:"indexes"`
}

// FindColumn returns the named column or nil.
func (t *Table) FindColumn(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// FindIndex returns the named index or nil.
func (t *Table) FindIndex(name string) *Index {
	for i := range t.Indexes {
		if t.Indexes[i].Name == name {
			return &t.Indexes[i]
		}
	}
	return nil
}

// Schema is an ordered set of tables.
type Schema struct {
	Tables []Table `json:"tables"`
}

// FindTable returns the named table or nil.
func (s *Schema) FindTable(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// Validate checks name uniqueness at every level, that varchar columns carry
// a size and that indexes reference existing columns.
func (s *Schema) Validate() error {
	tables := make(map[string]bool, len(s.Tables))
	for i := range s.Tables {
		t := &s.Tables[i]
		if t.Name == "" {
			return errInvalidSnapshot("table without a name", nil)
		}
		if tables[t.Name] {
			return errDuplicateName("table", t.Name, "")
		}
		tables[t.Name] = true
		if err := t.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) validate() error {
	if len(t.Columns) == 0 {
		return errInvalidSnapshot(fmt.Sprintf("table %q has no columns", t.Name), nil)
	}

	cols := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return errInvalidSnapshot(fmt.Sprintf("table %q has a column without a name", t.Name), nil)
		}
		if cols[c.Name] {
			return errDuplicateName("column", c.Name, t.Name)
		}
		cols[c.Name] = true

		if !c.Type.Base.Valid() {
			return errUnknownType(string(c.Type.Base))
		}
		if c.Type.Size < 0 {
			return errInvalidSnapshot(fmt.Sprintf("column %s.%s has a negative size", t.Name, c.Name), nil)
		}
		if c.Type.Base == VARCHAR && c.Type.Size == 0 {
			return errInvalidSnapshot(fmt.Sprintf("varchar column %s.%s needs a size", t.Name, c.Name), nil)
		}
	}

	idx := make(map[string]bool, len(t.Indexes))
	for _, ix := range t.Indexes {
		if ix.Name == "" {
			return errInvalidSnapshot(fmt.Sprintf("table %q has an index without a name", t.Name), nil)
		}
		if idx[ix.Name] {
			return errDuplicateName("index", ix.Name, t.Name)
		}
		idx[ix.Name] = true

		if len(ix.Columns) == 0 {
			return errInvalidSnapshot(fmt.Sprintf("index %s on %q has no columns", ix.Name, t.Name), nil)
		}
		for _, col := range ix.Columns {
			if !cols[col] {
				return errInvalidSnapshot(fmt.Sprintf("index %s references unknown column %s.%s", ix.Name, t.Name, col), nil)
			}
		}
	}
	return nil
}
