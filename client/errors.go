package client

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Pool error codes.
const (
	CodePoolClosed         = "E_POOL_CLOSED"
	CodePoolFactory        = "E_POOL_FACTORY"
	CodePoolDeadConnection = "E_POOL_DEAD_CONNECTION"
	CodePoolAcquireCancel  = "E_POOL_ACQUIRE_CANCELED"
)

// Transaction error codes.
const (
	CodeTxBeginFailed       = "E_TX_BEGIN_FAILED"
	CodeTxCommitFailed      = "E_TX_COMMIT_FAILED"
	CodeTxRollbackFailed    = "E_TX_ROLLBACK_FAILED"
	CodeTxAlreadyCommitted  = "E_TX_ALREADY_COMMITTED"
	CodeTxAlreadyRolledBack = "E_TX_ALREADY_ROLLED_BACK"
	CodeTxMoved             = "E_TX_MOVED"
)

// CodeNotFound is used by NotFoundError.
const CodeNotFound = "E_NOT_FOUND"

// Sentinels for errors.Is. Matching is by Code, so any PoolError with the
// same code satisfies errors.Is(err, ErrPoolClosed).
var (
	ErrPoolClosed         = &PoolError{Code: CodePoolClosed}
	ErrPoolFactory        = &PoolError{Code: CodePoolFactory}
	ErrPoolDeadConnection = &PoolError{Code: CodePoolDeadConnection}
	ErrAcquireCanceled    = &PoolError{Code: CodePoolAcquireCancel}

	ErrTxAlreadyCommitted  = &TransactionError{Code: CodeTxAlreadyCommitted}
	ErrTxAlreadyRolledBack = &TransactionError{Code: CodeTxAlreadyRolledBack}
	ErrTxMoved             = &TransactionError{Code: CodeTxMoved}
	ErrTxCommitFailed      = &TransactionError{Code: CodeTxCommitFailed}

	ErrNotFound = &NotFoundError{Code: CodeNotFound}
)

// PoolError represents resource failures: closed pool, factory failure, or a
// connection that failed its liveness probe when it had to be good.
type PoolError struct {
	Code    string                 `json:"code"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
	Cause   error                  `json:"cause,omitempty"`
}

// Error implements the error interface. Returns JSON.
func (e *PoolError) Error() string {
	return renderJSON(e.Code, e.Type, e.Message, e.Details, e.Cause)
}

// FormatError returns "CODE: message" when debugMode is false and indented
// JSON otherwise.
func (e *PoolError) FormatError(debugMode bool) string {
	return formatError(debugMode, e.Code, e.Type, e.Message, e.Details, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *PoolError) Unwrap() error { return e.Cause }

// Is matches any PoolError with the same code.
func (e *PoolError) Is(target error) bool {
	t, ok := target.(*PoolError)
	return ok && t.Code == e.Code
}

// TransactionError represents begin/commit/rollback failures and state
// machine violations.
type TransactionError struct {
	Code          string                 `json:"code"`
	Type          string                 `json:"type"`
	Message       string                 `json:"message"`
	Details       map[string]interface{} `json:"details"`
	TransactionID string                 `json:"transaction_id"`
	State         string                 `json:"state"`
	Cause         error                  `json:"cause,omitempty"`
}

// Error implements the error interface.
func (e *TransactionError) Error() string {
	return renderJSON(e.Code, e.Type, e.Message, e.details(), e.Cause)
}

// FormatError formats the error based on debug mode setting.
func (e *TransactionError) FormatError(debugMode bool) string {
	return formatError(debugMode, e.Code, e.Type, e.Message, e.details(), e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *TransactionError) Unwrap() error { return e.Cause }

// Is matches any TransactionError with the same code.
func (e *TransactionError) Is(target error) bool {
	t, ok := target.(*TransactionError)
	return ok && t.Code == e.Code
}

func (e *TransactionError) details() map[string]interface{} {
	d := make(map[string]interface{}, len(e.Details)+2)
	for k, v := range e.Details {
		d[k] = v
	}
	if e.TransactionID != "" {
		d["transaction_id"] = e.TransactionID
	}
	if e.State != "" {
		d["state"] = e.State
	}
	return d
}

// NotFoundError is returned when a query expected a record and found none.
type NotFoundError struct {
	Code    string                 `json:"code"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
	Query   string                 `json:"query"`
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	d := map[string]interface{}{"query": e.Query}
	for k, v := range e.Details {
		d[k] = v
	}
	return renderJSON(e.Code, e.Type, e.Message, d, nil)
}

// Is matches any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

func newPoolError(code, message string, cause error) *PoolError {
	return &PoolError{Code: code, Type: "PoolError", Message: message, Cause: cause}
}

func newTxError(code, message, txID, state string, cause error) *TransactionError {
	return &TransactionError{
		Code:          code,
		Type:          "TransactionError",
		Message:       message,
		TransactionID: txID,
		State:         state,
		Cause:         cause,
	}
}

func errTxAlreadyCommitted(txID string) error {
	return newTxError(CodeTxAlreadyCommitted, "transaction already committed", txID, txCommitted.String(), nil)
}

func errTxAlreadyRolledBack(txID string) error {
	return newTxError(CodeTxAlreadyRolledBack, "transaction already rolled back", txID, txRolledBack.String(), nil)
}

func errTxMoved(txID string) error {
	return newTxError(CodeTxMoved, "transaction was moved to another guard", txID, txMoved.String(), nil)
}

func newNotFound(query string) *NotFoundError {
	return &NotFoundError{Code: CodeNotFound, Type: "NotFoundError", Message: "query returned no rows", Query: query}
}

func renderJSON(code, typ, message string, details map[string]interface{}, cause error) string {
	data := map[string]interface{}{
		"code":    code,
		"type":    typ,
		"message": message,
	}
	if len(details) > 0 {
		data["details"] = details
	}
	if cause != nil {
		data["cause"] = map[string]interface{}{"message": cause.Error()}
	}
	b, _ := json.Marshal(data)
	return string(b)
}

func formatError(debugMode bool, code, typ, message string, details map[string]interface{}, cause error) string {
	if !debugMode {
		if cause != nil {
			return fmt.Sprintf("%s: %s (caused by: %s)", code, message, cause.Error())
		}
		return fmt.Sprintf("%s: %s", code, message)
	}
	data := map[string]interface{}{
		"code":    code,
		"type":    typ,
		"message": message,
	}
	if len(details) > 0 {
		data["details"] = details
	}
	if cause != nil {
		data["cause"] = map[string]interface{}{"message": cause.Error()}
	}
	b, _ := json.MarshalIndent(data, "", "  ")
	return string(b)
}

// FormatError formats any error for display. Typed errors from this package
// honour debugMode; other errors return err.Error().
func FormatError(err error, debugMode bool) string {
	if err == nil {
		return ""
	}
	var f interface{ FormatError(bool) string }
	if errors.As(err, &f) {
		return f.FormatError(debugMode)
	}
	return err.Error()
}
