// Package errors provides structured error handling for searchsync.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (schema metadata, settings, alias state)
//   - 2XX: IO errors (files, locks)
//   - 3XX: Backend errors (search engine transport and rejections)
//   - 4XX: Validation errors
//   - 5XX: Internal errors (sync and reindex failures)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and lock I/O errors.
	CategoryIO Category = "IO"
	// CategoryBackend indicates search backend errors.
	CategoryBackend Category = "BACKEND"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates sync pipeline errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound    = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid     = "ERR_102_CONFIG_INVALID"
	ErrCodeMissingSearchID   = "ERR_103_MISSING_SEARCH_ID"
	ErrCodeDuplicateSearchID = "ERR_104_DUPLICATE_SEARCH_ID"
	ErrCodeUnknownType       = "ERR_105_UNKNOWN_TYPE"
	ErrCodeMappingInvalid    = "ERR_106_MAPPING_INVALID"
	ErrCodeAliasState        = "ERR_107_ALIAS_STATE"

	// IO errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeLockFailed     = "ERR_203_LOCK_FAILED"

	// Backend errors (300-399)
	ErrCodeBackendUnavailable = "ERR_301_BACKEND_UNAVAILABLE"
	ErrCodeBackendRejected    = "ERR_302_BACKEND_REJECTED"
	ErrCodeNotAcknowledged    = "ERR_303_NOT_ACKNOWLEDGED"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeMissingKey   = "ERR_402_MISSING_KEY"

	// Internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeBulkPartial       = "ERR_502_BULK_PARTIAL"
	ErrCodeReindexInProgress = "ERR_503_REINDEX_IN_PROGRESS"
	ErrCodeReindexFailed     = "ERR_504_REINDEX_FAILED"
	ErrCodeSourceFailed      = "ERR_505_SOURCE_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
// Configuration problems abort a run; per-record and per-item failures
// are absorbed by the sync service.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeNotAcknowledged, ErrCodeReindexFailed:
		return SeverityFatal
	case ErrCodeBulkPartial, ErrCodeMissingKey:
		return SeverityWarning
	}

	if categoryFromCode(code) == CategoryConfig {
		return SeverityFatal
	}
	return SeverityError
}
