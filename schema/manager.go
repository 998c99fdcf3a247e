package schema

import "fmt"

// OpKind identifies the variant of an Op.
type OpKind string

const (
	OpCreateTable OpKind = "create_table"
	OpDropTable   OpKind = "drop_table"
	OpAddColumn   OpKind = "add_column"
	OpDropColumn  OpKind = "drop_column"
	OpCreateIndex OpKind = "create_index"
	OpDropIndex   OpKind = "drop_index"
)

// OpKinds lists every variant.
func OpKinds() []OpKind {
	return []OpKind{OpCreateTable, OpDropTable, OpAddColumn, OpDropColumn, OpCreateIndex, OpDropIndex}
}

// Op is one structural change. The set of implementations is closed: each
// variant carries the full definition it touches, so Inverse never needs the
// schema the op was computed from.
type Op interface {
	Kind() OpKind
	Inverse() Op
	String() string
	isOp()
}

// CreateTable creates Table together with its indexes.
type CreateTable struct {
	Table Table
}

// DropTable drops a table; Table keeps the definition for the reverse.
type DropTable struct {
	Table Table
}

// AddColumn adds Column to the named table.
type AddColumn struct {
	Table  string
	Column Column
}

// DropColumn drops a column; Column keeps the definition for the reverse.
type DropColumn struct {
	Table  string
	Column Column
}

// CreateIndex creates Index on the named table.
type CreateIndex struct {
	Table string
	Index Index
}

// DropIndex drops an index; Index keeps the definition for the reverse.
type DropIndex struct {
	Table string
	Index Index
}

func (CreateTable) Kind() OpKind { return OpCreateTable }
func (DropTable) Kind() OpKind   { return OpDropTable }
func (AddColumn) Kind() OpKind   { return OpAddColumn }
func (DropColumn) Kind() OpKind  { return OpDropColumn }
func (CreateIndex) Kind() OpKind { return OpCreateIndex }
func (DropIndex) Kind() OpKind   { return OpDropIndex }

func (o CreateTable) Inverse() Op { return DropTable{Table: o.Table} }
func (o DropTable) Inverse() Op   { return CreateTable{Table: o.Table} }
func (o AddColumn) Inverse() Op   { return DropColumn{Table: o.Table, Column: o.Column} }
func (o DropColumn) Inverse() Op  { return AddColumn{Table: o.Table, Column: o.Column} }
func (o CreateIndex) Inverse() Op { return DropIndex{Table: o.Table, Index: o.Index} }
func (o DropIndex) Inverse() Op   { return CreateIndex{Table: o.Table, Index: o.Index} }

func (o CreateTable) String() string { return fmt.Sprintf("create table %s", o.Table.Name) }
func (o DropTable) String() string   { return fmt.Sprintf("drop table %s", o.Table.Name) }
func (o AddColumn) String() string   { return fmt.Sprintf("add column %s.%s", o.Table, o.Column.Name) }
func (o DropColumn) String() string  { return fmt.Sprintf("drop column %s.%s", o.Table, o.Column.Name) }
func (o CreateIndex) String() string { return fmt.Sprintf("create index %s on %s", o.Index.Name, o.Table) }
func (o DropIndex) String() string   { return fmt.Sprintf("drop index %s on %s", o.Index.Name, o.Table) }

func (CreateTable) isOp() {}
func (DropTable) isOp()   {}
func (AddColumn) isOp()   {}
func (DropColumn) isOp()  {}
func (CreateIndex) isOp() {}
func (DropIndex) isOp()   {}

// Diff computes the operations that turn from into to. Both schemas are
// validated first; nil means empty.
//
// Ops are emitted in this order, and within each step in declaration order:
//  1. DropTable for tables only in from
//  2. CreateTable for tables only in to
//  3. for tables in both: DropIndex, DropColumn, AddColumn, CreateIndex
//
// Identity is by name, so a rename is a drop plus an add. Changes to a
// column or index that keeps its name are not detected.
func Diff(from, to *Schema) ([]Op, error) {
	if from == nil {
		from = &Schema{}
	}
	if to == nil {
		to = &Schema{}
	}
	if err := from.Validate(); err != nil {
		return nil, err
	}
	if err := to.Validate(); err != nil {
		return nil, err
	}

	ops := make([]Op, 0)

	for _, old := range from.Tables {
		if to.FindTable(old.Name) == nil {
			ops = append(ops, DropTable{Table: old})
		}
	}

	for _, t := range to.Tables {
		if from.FindTable(t.Name) == nil {
			ops = append(ops, CreateTable{Table: t})
		}
	}

	for i := range to.Tables {
		newT := &to.Tables[i]
		oldT := from.FindTable(newT.Name)
		if oldT == nil {
			continue
		}
		ops = append(ops, compareTables(oldT, newT)...)
	}

	return ops, nil
}

// compareTables diffs the columns and indexes of one table. Index drops come
// before column drops and index creates after column adds, so no index ever
// refers to a column that is missing at that point of the up or down script.
func compareTables(oldT, newT *Table) []Op {
	var ops []Op

	for _, ix := range oldT.Indexes {
		if newT.FindIndex(ix.Name) == nil {
			ops = append(ops, DropIndex{Table: newT.Name, Index: ix})
		}
	}

	for _, c := range oldT.Columns {
		if newT.FindColumn(c.Name) == nil {
			ops = append(ops, DropColumn{Table: newT.Name, Column: c})
		}
	}
	for _, c := range newT.Columns {
		if oldT.FindColumn(c.Name) == nil {
			ops = append(ops, AddColumn{Table: newT.Name, Column: c})
		}
	}

	for _, ix := range newT.Indexes {
		if oldT.FindIndex(ix.Name) == nil {
			ops = append(ops, CreateIndex{Table: newT.Name, Index: ix})
		}
	}

	return ops
}
