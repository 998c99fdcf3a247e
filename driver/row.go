package driver

import (
	"fmt"
	"strconv"
)

// Row is one materialized result row.
type Row struct {
	cols   []string
	values []Value
}

// NewRow builds a row. cols and values must have the same length.
func NewRow(cols []string, values []Value) Row {
	return Row{cols: cols, values: values}
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.values) }

// Cols returns the column names.
func (r Row) Cols() []string { return r.cols }

// Value returns column i, counted from 0.
func (r Row) Value(i int) (Value, error) {
	if i < 0 || i >= len(r.values) {
		return Value{}, fmt.Errorf("driver: column %d out of range [0,%d)", i, len(r.values))
	}
	return r.values[i], nil
}

// Index returns the position of the named column or -1.
func (r Row) Index(name string) int {
	for i, c := range r.cols {
		if c == name {
			return i
		}
	}
	return -1
}

// IsNull reports whether column i is NULL. Out of range counts as NULL.
func (r Row) IsNull(i int) bool {
	v, err := r.Value(i)
	return err != nil || v.IsNull()
}

// String returns column i as text. Numbers and booleans are formatted.
func (r Row) String(i int) (string, error) {
	v, err := r.Value(i)
	if err != nil {
		return "", err
	}
	switch v.Kind() {
	case KindText:
		return v.s, nil
	case KindBlob:
		return string(v.blob), nil
	case KindInt64:
		return strconv.FormatInt(v.i, 10), nil
	case KindFloat64:
		return strconv.FormatFloat(v.f, 'g', -1, 64), nil
	case KindBool:
		return strconv.FormatBool(v.b), nil
	case KindNull:
		return "", mismatch(r, i, v, "string")
	default:
		return "", ErrUnsupportedValue
	}
}

// Int64 returns column i as an integer. Text holding a decimal integer is parsed.
func (r Row) Int64(i int) (int64, error) {
	v, err := r.Value(i)
	if err != nil {
		return 0, err
	}
	switch v.Kind() {
	case KindInt64:
		return v.i, nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindText:
		n, perr := strconv.ParseInt(v.s, 10, 64)
		if perr != nil {
			return 0, mismatch(r, i, v, "int64")
		}
		return n, nil
	case KindNull, KindFloat64, KindBlob:
		return 0, mismatch(r, i, v, "int64")
	default:
		return 0, ErrUnsupportedValue
	}
}

// Float64 returns column i as a double. Integers are widened.
func (r Row) Float64(i int) (float64, error) {
	v, err := r.Value(i)
	if err != nil {
		return 0, err
	}
	switch v.Kind() {
	case KindFloat64:
		return v.f, nil
	case KindInt64:
		return float64(v.i), nil
	case KindText:
		f, perr := strconv.ParseFloat(v.s, 64)
		if perr != nil {
			return 0, mismatch(r, i, v, "float64")
		}
		return f, nil
	case KindNull, KindBool, KindBlob:
		return 0, mismatch(r, i, v, "float64")
	default:
		return 0, ErrUnsupportedValue
	}
}

// Bool returns column i as a boolean. Integers are true when non-zero.
func (r Row) Bool(i int) (bool, error) {
	v, err := r.Value(i)
	if err != nil {
		return false, err
	}
	switch v.Kind() {
	case KindBool:
		return v.b, nil
	case KindInt64:
		return v.i != 0, nil
	case KindText:
		b, perr := strconv.ParseBool(v.s)
		if perr != nil {
			return false, mismatch(r, i, v, "bool")
		}
		return b, nil
	case KindNull, KindFloat64, KindBlob:
		return false, mismatch(r, i, v, "bool")
	default:
		return false, ErrUnsupportedValue
	}
}

// StringOr returns column i as text, or def if it is NULL or unreadable.
func (r Row) StringOr(i int, def string) string {
	s, err := r.String(i)
	if err != nil {
		return def
	}
	return s
}

// Int64Or returns column i as an integer, or def.
func (r Row) Int64Or(i int, def int64) int64 {
	n, err := r.Int64(i)
	if err != nil {
		return def
	}
	return n
}

// Float64Or returns column i as a double, or def.
func (r Row) Float64Or(i int, def float64) float64 {
	f, err := r.Float64(i)
	if err != nil {
		return def
	}
	return f
}

// BoolOr returns column i as a boolean, or def.
func (r Row) BoolOr(i int, def bool) bool {
	b, err := r.Bool(i)
	if err != nil {
		return def
	}
	return b
}

func mismatch(r Row, i int, v Value, want string) error {
	name := strconv.Itoa(i)
	if i < len(r.cols) && r.cols[i] != "" {
		name = r.cols[i]
	}
	return fmt.Errorf("driver: column %s holds %s, cannot read as %s", name, v.Kind(), want)
}
