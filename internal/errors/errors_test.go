package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("connection refused")

	// When: wrapping with SyncError
	syncErr := New(ErrCodeBackendUnavailable, "bulk request failed", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, syncErr)
	assert.Equal(t, originalErr, errors.Unwrap(syncErr))
	assert.True(t, errors.Is(syncErr, originalErr))
}

func TestSyncError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		cause    error
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeMissingSearchID,
			message:  "type product has no search id field",
			expected: "[ERR_103_MISSING_SEARCH_ID] type product has no search id field",
		},
		{
			name:     "backend error with cause",
			code:     ErrCodeBackendUnavailable,
			message:  "create index failed",
			cause:    errors.New("dial tcp: refused"),
			expected: "[ERR_301_BACKEND_UNAVAILABLE] create index failed: dial tcp: refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, tt.cause)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestSyncError_Is_MatchesByCode(t *testing.T) {
	err := New(ErrCodeReindexInProgress, "reindex of products already running", nil)

	assert.True(t, errors.Is(err, ErrReindexInProgress))
	assert.False(t, errors.Is(err, ErrNotAcknowledged))
}

func TestSyncError_CategoryAndSeverity_DerivedFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
		severity Severity
	}{
		{ErrCodeMissingSearchID, CategoryConfig, SeverityFatal},
		{ErrCodeAliasState, CategoryConfig, SeverityFatal},
		{ErrCodeLockFailed, CategoryIO, SeverityError},
		{ErrCodeBackendRejected, CategoryBackend, SeverityError},
		{ErrCodeNotAcknowledged, CategoryBackend, SeverityFatal},
		{ErrCodeMissingKey, CategoryValidation, SeverityWarning},
		{ErrCodeBulkPartial, CategoryInternal, SeverityWarning},
		{"bogus", CategoryInternal, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "x", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
		})
	}
}

func TestHelpers_WorkThroughWrappedChains(t *testing.T) {
	// Given: a config error wrapped by fmt.Errorf
	inner := New(ErrCodeUnknownType, "unknown type order", nil)
	outer := fmt.Errorf("compile mapping: %w", inner)

	// Then: helpers see through the chain
	assert.True(t, IsConfig(outer))
	assert.True(t, IsFatal(outer))
	assert.Equal(t, ErrCodeUnknownType, GetCode(outer))
	assert.Equal(t, CategoryConfig, GetCategory(outer))

	assert.False(t, IsConfig(errors.New("plain")))
	assert.Equal(t, "", GetCode(nil))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWithDetail_AddsContext(t *testing.T) {
	err := ConfigError("bad alias", nil).
		WithDetail("alias", "products").
		WithSuggestion("remove the conflicting index")

	assert.Equal(t, "products", err.Details["alias"])
	assert.Equal(t, "remove the conflicting index", err.Suggestion)
}

func TestFormatForCLI(t *testing.T) {
	err := New(ErrCodeNotAcknowledged, "settings update not acknowledged", nil).
		WithSuggestion("check cluster health")

	out := FormatForCLI(err)
	assert.Contains(t, out, "Error: settings update not acknowledged")
	assert.Contains(t, out, "Hint: check cluster health")
	assert.Contains(t, out, "Code: ERR_303_NOT_ACKNOWLEDGED")

	assert.Contains(t, FormatForCLI(errors.New("boom")), "Code: ERR_501_INTERNAL")
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatJSON(t *testing.T) {
	err := New(ErrCodeBulkPartial, "3 of 500 items failed", errors.New("version conflict")).
		WithDetail("index", "products_1")

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeBulkPartial, decoded["code"])
	assert.Equal(t, "INTERNAL", decoded["category"])
	assert.Equal(t, "WARNING", decoded["severity"])
	assert.Equal(t, "version conflict", decoded["cause"])
}

func TestLogAttrs(t *testing.T) {
	attrs := LogAttrs(New(ErrCodeBackendRejected, "rejected", errors.New("409")))
	assert.Equal(t, []any{
		"error_code", ErrCodeBackendRejected,
		"error", "rejected",
		"severity", "ERROR",
		"cause", "409",
	}, attrs)

	assert.Equal(t, []any{"error", "plain"}, LogAttrs(errors.New("plain")))
	assert.Nil(t, LogAttrs(nil))
}
