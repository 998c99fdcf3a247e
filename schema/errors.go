package schema

import (
	"encoding/json"
	"fmt"
)

// Error codes.
const (
	CodeInvalidSnapshot    = "INVALID_SNAPSHOT"
	CodeUnknownType        = "UNKNOWN_TYPE"
	CodeUnsupportedDialect = "UNSUPPORTED_DIALECT"
	CodeDuplicateName      = "DUPLICATE_NAME"
	CodeUnsupportedChange  = "UNSUPPORTED_CHANGE"
)

// Sentinels for errors.Is.
var (
	ErrInvalidSnapshot    = &SchemaError{Code: CodeInvalidSnapshot}
	ErrUnknownType        = &SchemaError{Code: CodeUnknownType}
	ErrUnsupportedDialect = &SchemaError{Code: CodeUnsupportedDialect}
	ErrDuplicateName      = &SchemaError{Code: CodeDuplicateName}
	ErrUnsupportedChange  = &SchemaError{Code: CodeUnsupportedChange}
)

// SchemaError reports malformed snapshots and generation failures.
type SchemaError struct {
	Code    string                 `json:"code"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
	Cause   error                  `json:"cause,omitempty"`
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	data := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
		"details": e.Details,
	}
	if e.Cause != nil {
		data["cause"] = map[string]interface{}{"message": e.Cause.Error()}
	}
	b, _ := json.Marshal(data)
	return string(b)
}

// FormatError renders CODE: message, or indented JSON in debug mode.
func (e *SchemaError) FormatError(debugMode bool) string {
	if debugMode {
		var out map[string]interface{}
		_ = json.Unmarshal([]byte(e.Error()), &out)
		b, _ := json.MarshalIndent(out, "", "  ")
		return string(b)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %s)", e.Code, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// Is matches any SchemaError with the same code.
func (e *SchemaError) Is(target error) bool {
	t, ok := target.(*SchemaError)
	return ok && t.Code == e.Code
}

func errInvalidSnapshot(msg string, cause error) error {
	return &SchemaError{
		Code:    CodeInvalidSnapshot,
		Type:    "SCHEMA_ERROR",
		Message: msg,
		Details: map[string]interface{}{},
		Cause:   cause,
	}
}

func errUnknownType(tag string) error {
	return &SchemaError{
		Code:    CodeUnknownType,
		Type:    "SCHEMA_ERROR",
		Message: fmt.Sprintf("unknown base type '%s'", tag),
		Details: map[string]interface{}{
			"base": tag,
		},
	}
}

func errUnsupportedDialect(dialect string) error {
	return &SchemaError{
		Code:    CodeUnsupportedDialect,
		Type:    "SCHEMA_ERROR",
		Message: fmt.Sprintf("dialect '%s' is not supported (use mysql, sqlite or postgres)", dialect),
		Details: map[string]interface{}{
			"dialect": dialect,
		},
	}
}

func errDuplicateName(kind, name, table string) error {
	details := map[string]interface{}{
		"kind": kind,
		"name": name,
	}
	msg := fmt.Sprintf("duplicate %s '%s'", kind, name)
	if table != "" {
		details["table"] = table
		msg = fmt.Sprintf("duplicate %s '%s' in table '%s'", kind, name, table)
	}
	return &SchemaError{
		Code:    CodeDuplicateName,
		Type:    "SCHEMA_ERROR",
		Message: msg,
		Details: details,
	}
}

func errUnsupportedChange(dialect Dialect, op Op, reason string) error {
	return &SchemaError{
		Code:    CodeUnsupportedChange,
		Type:    "SCHEMA_ERROR",
		Message: fmt.Sprintf("%s cannot %s: %s", dialect, op, reason),
		Details: map[string]interface{}{
			"dialect": string(dialect),
			"op":      string(op.Kind()),
		},
	}
}
