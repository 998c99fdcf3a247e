package driver

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// Kind identifies which variant of a Value is active.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindText
	KindBlob

	// numKinds must stay last. Tests walk every kind below it.
	numKinds
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Kinds returns every valid kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, numKinds)
	for k := KindNull; k < numKinds; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Value is a bindable SQL scalar. Exactly one variant is active, selected by
// Kind. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	blob []byte
}

// Null returns the SQL NULL value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int64 wraps a signed 64-bit integer.
func Int64(v int64) Value { return Value{kind: KindInt64, i: v} }

// Int wraps an int as an Int64 value.
func Int(v int) Value { return Int64(int64(v)) }

// Float64 wraps a double.
func Float64(v float64) Value { return Value{kind: KindFloat64, f: v} }

// Text wraps a string.
func Text(v string) Value { return Value{kind: KindText, s: v} }

// Blob wraps binary data. The slice is copied.
func Blob(v []byte) Value {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Value{kind: KindBlob, blob: cp}
}

// Kind reports the active variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt64 returns the integer payload.
func (v Value) AsInt64() (int64, bool) { return v.i, v.kind == KindInt64 }

// AsFloat64 returns the double payload.
func (v Value) AsFloat64() (float64, bool) { return v.f, v.kind == KindFloat64 }

// AsText returns the string payload.
func (v Value) AsText() (string, bool) { return v.s, v.kind == KindText }

// AsBlob returns the binary payload. The returned slice must not be modified.
func (v Value) AsBlob() ([]byte, bool) { return v.blob, v.kind == KindBlob }

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt64:
		return v.i == o.i
	case KindFloat64:
		return v.f == o.f
	case KindText:
		return v.s == o.s
	case KindBlob:
		return string(v.blob) == string(o.blob)
	default:
		return false
	}
}

// String renders the value for logs and error messages.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindFloat64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return strconv.Quote(v.s)
	case KindBlob:
		return "x'" + hex.EncodeToString(v.blob) + "'"
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}
