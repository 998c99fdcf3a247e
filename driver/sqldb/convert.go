package sqldb

import (
	"fmt"
	"strings"
	"time"

	"github.com/dan-strohschein/sqlkit/driver"
)

// TimeLayout is used to render temporal columns as text.
const TimeLayout = "2006-01-02 15:04:05"

// toArg converts a bound value into a database/sql argument.
func toArg(v driver.Value) (any, error) {
	switch v.Kind() {
	case driver.KindNull:
		return nil, nil
	case driver.KindBool:
		b, _ := v.AsBool()
		return b, nil
	case driver.KindInt64:
		n, _ := v.AsInt64()
		return n, nil
	case driver.KindFloat64:
		f, _ := v.AsFloat64()
		return f, nil
	case driver.KindText:
		s, _ := v.AsText()
		return s, nil
	case driver.KindBlob:
		b, _ := v.AsBlob()
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %s", driver.ErrUnsupportedValue, v.Kind())
	}
}

// fromScanned converts a scanned column into a Value. dbType is the column's
// DatabaseTypeName and decides whether raw bytes are text or binary.
func fromScanned(src any, dbType string) (driver.Value, error) {
	switch x := src.(type) {
	case nil:
		return driver.Null(), nil
	case bool:
		return driver.Bool(x), nil
	case int64:
		return driver.Int64(x), nil
	case int32:
		return driver.Int64(int64(x)), nil
	case int16:
		return driver.Int64(int64(x)), nil
	case int8:
		return driver.Int64(int64(x)), nil
	case int:
		return driver.Int64(int64(x)), nil
	case uint32:
		return driver.Int64(int64(x)), nil
	case float64:
		return driver.Float64(x), nil
	case float32:
		return driver.Float64(float64(x)), nil
	case string:
		return driver.Text(x), nil
	case []byte:
		if isBinaryType(dbType) {
			return driver.Blob(x), nil
		}
		return driver.Text(string(x)), nil
	case time.Time:
		return driver.Text(x.UTC().Format(TimeLayout)), nil
	case fmt.Stringer:
		return driver.Text(x.String()), nil
	default:
		return driver.Value{}, fmt.Errorf("%w: scanned %T for column type %q", driver.ErrUnsupportedValue, src, dbType)
	}
}

func isBinaryType(dbType string) bool {
	t := strings.ToUpper(dbType)
	return strings.Contains(t, "BLOB") || strings.Contains(t, "BINARY") || t == "BYTEA"
}
