package migration

import (
	"encoding/json"
	"fmt"
)

// Error codes.
const (
	CodeMigrationFailed      = "MIGRATION_FAILED"
	CodeMissingDownScript    = "MISSING_DOWN_SCRIPT"
	CodeInsufficientApplied  = "INSUFFICIENT_APPLIED"
	CodeChecksumMismatch     = "CHECKSUM_MISMATCH"
	CodeInvalidMigrationFile = "INVALID_MIGRATION_FILE"
	CodeDuplicateMigration   = "DUPLICATE_MIGRATION"
	CodeLedgerError          = "LEDGER_ERROR"
	CodeLockHeld             = "LOCK_HELD"
)

// Sentinels for errors.Is. Matching is by Code.
var (
	ErrFailed       = &MigrationError{Code: CodeMigrationFailed}
	ErrMissingDown  = &MigrationError{Code: CodeMissingDownScript}
	ErrInsufficient = &MigrationError{Code: CodeInsufficientApplied}
	ErrChecksum     = &MigrationError{Code: CodeChecksumMismatch}
	ErrInvalidFile  = &MigrationError{Code: CodeInvalidMigrationFile}
	ErrDuplicate    = &MigrationError{Code: CodeDuplicateMigration}
	ErrLedger       = &MigrationError{Code: CodeLedgerError}
	ErrLockHeld     = &MigrationError{Code: CodeLockHeld}
)

// MigrationError represents migration-specific errors.
type MigrationError struct {
	Code    string                 `json:"code"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
	Cause   error                  `json:"cause,omitempty"`
}

// Error implements the error interface.
func (e *MigrationError) Error() string {
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

// FormatError returns "CODE: message" when debugMode is false and indented
// JSON otherwise.
func (e *MigrationError) FormatError(debugMode bool) string {
	if !debugMode {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (caused by: %s)", e.Code, e.Message, e.Cause.Error())
		}
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	data := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
		"details": e.Details,
	}
	if e.Cause != nil {
		data["cause"] = map[string]interface{}{"message": e.Cause.Error()}
	}
	b, _ := json.MarshalIndent(data, "", "  ")
	return string(b)
}

// Unwrap returns the underlying cause error.
func (e *MigrationError) Unwrap() error {
	return e.Cause
}

// Is matches any MigrationError with the same code.
func (e *MigrationError) Is(target error) bool {
	t, ok := target.(*MigrationError)
	return ok && t.Code == e.Code
}

// ErrMigrationFailed creates an error for when a migration execution fails.
func ErrMigrationFailed(migrationID string, cause error) error {
	return &MigrationError{
		Code:    CodeMigrationFailed,
		Type:    "MIGRATION_ERROR",
		Message: fmt.Sprintf("migration '%s' failed to execute", migrationID),
		Details: map[string]interface{}{
			"migrationId": migrationID,
		},
		Cause: cause,
	}
}

// ErrMissingDownScript creates an error for a rollback without a down script.
func ErrMissingDownScript(migrationID string) error {
	return &MigrationError{
		Code:    CodeMissingDownScript,
		Type:    "MIGRATION_ERROR",
		Message: fmt.Sprintf("migration '%s' has no down script", migrationID),
		Details: map[string]interface{}{
			"migrationId": migrationID,
		},
	}
}

// ErrInsufficientApplied creates an error for a rollback asking for more
// steps than there are applied migrations.
func ErrInsufficientApplied(requested, applied int) error {
	return &MigrationError{
		Code:    CodeInsufficientApplied,
		Type:    "MIGRATION_ERROR",
		Message: fmt.Sprintf("cannot roll back %d migration(s): only %d applied", requested, applied),
		Details: map[string]interface{}{
			"requested": requested,
			"applied":   applied,
		},
	}
}

// ErrChecksumMismatch creates an error for when migration checksums don't match.
func ErrChecksumMismatch(conflicts []MigrationConflict) error {
	details := make([]map[string]interface{}, len(conflicts))
	ids := make([]string, len(conflicts))
	for i, c := range conflicts {
		ids[i] = c.MigrationID
		details[i] = map[string]interface{}{
			"migrationId": c.MigrationID,
			"expected":    c.Expected,
			"actual":      c.Actual,
		}
	}

	msg := fmt.Sprintf("%d applied migration(s) were modified after being applied", len(conflicts))
	if len(conflicts) == 1 {
		msg = fmt.Sprintf("migration '%s' has been modified (checksum mismatch)", ids[0])
	}
	return &MigrationError{
		Code:    CodeChecksumMismatch,
		Type:    "MIGRATION_ERROR",
		Message: msg,
		Details: map[string]interface{}{
			"migrationIds": ids,
			"conflicts":    details,
		},
	}
}

// ErrInvalidMigrationFile creates an error for malformed migration files.
func ErrInvalidMigrationFile(filename string, cause error) error {
	return &MigrationError{
		Code:    CodeInvalidMigrationFile,
		Type:    "MIGRATION_ERROR",
		Message: fmt.Sprintf("migration file '%s' is invalid", filename),
		Details: map[string]interface{}{
			"filename": filename,
		},
		Cause: cause,
	}
}

// ErrDuplicateMigration creates an error for two files claiming the same id
// and direction.
func ErrDuplicateMigration(migrationID string, files ...string) error {
	return &MigrationError{
		Code:    CodeDuplicateMigration,
		Type:    "MIGRATION_ERROR",
		Message: fmt.Sprintf("migration '%s' is defined more than once", migrationID),
		Details: map[string]interface{}{
			"migrationId": migrationID,
			"files":       files,
		},
	}
}

// ErrLedgerFailed wraps failures reading or writing the ledger table.
func ErrLedgerFailed(table, op string, cause error) error {
	return &MigrationError{
		Code:    CodeLedgerError,
		Type:    "MIGRATION_ERROR",
		Message: fmt.Sprintf("ledger table '%s': %s failed", table, op),
		Details: map[string]interface{}{
			"table":     table,
			"operation": op,
		},
		Cause: cause,
	}
}

// ErrLockConflict reports a migration lock held by another process.
func ErrLockConflict(meta *LockMetadata, age string) error {
	details := map[string]interface{}{}
	msg := "migration lock is held by another process"
	if meta != nil {
		details["holder"] = meta.Holder
		details["hostname"] = meta.Hostname
		details["pid"] = meta.PID
		details["age"] = age
		msg = fmt.Sprintf("migration lock is held by %s@%s (PID %d) since %s ago. "+
			"Wait for the migration to complete or use force unlock if the process is stuck",
			meta.Holder, meta.Hostname, meta.PID, age)
	}
	return &MigrationError{
		Code:    CodeLockHeld,
		Type:    "MIGRATION_ERROR",
		Message: msg,
		Details: details,
	}
}
