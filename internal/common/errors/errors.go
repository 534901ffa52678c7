// Package errors provides standardized error handling for the notification
// dispatch engine.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Cycle-level bulk-load failures: fatal for the cycle, nothing partial
	// has been committed yet.
	ErrCodePreferencesLoadFailed ErrorCode = "PREFERENCES_LOAD_FAILED"
	ErrCodePromiseQueryFailed    ErrorCode = "PROMISE_QUERY_FAILED"
	ErrCodeProfileLoadFailed     ErrorCode = "PROFILE_LOAD_FAILED"

	// Per-user degradations: skip the affected user or payload field and
	// continue the cycle.
	ErrCodeProfileNotFound    ErrorCode = "PROFILE_NOT_FOUND"
	ErrCodeHistoryQueryFailed ErrorCode = "HISTORY_QUERY_FAILED"
	ErrCodeTemplateNotFound   ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeUnknownTimezone    ErrorCode = "UNKNOWN_TIMEZONE"

	// Transport and persistence failures.
	ErrCodeEmailSendFailed       ErrorCode = "EMAIL_SEND_FAILED"
	ErrCodeEmailSendTimeout      ErrorCode = "EMAIL_SEND_TIMEOUT"
	ErrCodeWatermarkUpdateFailed ErrorCode = "WATERMARK_UPDATE_FAILED"
	ErrCodeAuditLogWriteFailed   ErrorCode = "AUDIT_LOG_WRITE_FAILED"

	// Infrastructure.
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDispatchLockHeld         ErrorCode = "DISPATCH_LOCK_HELD"
	ErrCodeValidationFailed         ErrorCode = "VALIDATION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewPreferencesLoadFailedError creates a retryable cycle-fatal error for
// the initial preference bulk fetch.
func NewPreferencesLoadFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePreferencesLoadFailed,
		Message:   "Failed to load notification preferences",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPromiseQueryFailedError creates a retryable cycle-fatal error for the
// candidate promise bulk fetch.
func NewPromiseQueryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePromiseQueryFailed,
		Message:   "Failed to load candidate promises",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProfileLoadFailedError creates a retryable cycle-fatal error for the
// profile directory bulk fetch.
func NewProfileLoadFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProfileLoadFailed,
		Message:   "Failed to load profile directory",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProfileNotFoundError creates a non-retryable per-user error; the user
// is skipped for this cycle.
func NewProfileNotFoundError(userID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProfileNotFound,
		Message:   "No profile found for user",
		Details:   fmt.Sprintf("userId: %s", userID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewHistoryQueryFailedError creates a retryable error for the integrity
// history projection; the weekly payload degrades to no score.
func NewHistoryQueryFailedError(email string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeHistoryQueryFailed,
		Message:   "Failed to load promise history",
		Details:   fmt.Sprintf("owner: %s, error: %s", email, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(emailType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Email template not found in registry",
		Details:   fmt.Sprintf("emailType: %s", emailType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmailSendFailedError creates a retryable transport error. The retry is
// the next natural schedule window, never within the same cycle.
func NewEmailSendFailedError(recipient string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmailSendFailed,
		Message:   "Email delivery failed",
		Details:   fmt.Sprintf("recipient: %s, error: %s", recipient, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmailSendTimeoutError creates a retryable transport timeout error.
func NewEmailSendTimeoutError(recipient string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmailSendTimeout,
		Message:   "Email delivery timed out",
		Details:   fmt.Sprintf("recipient: %s", recipient),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewWatermarkUpdateFailedError creates the error logged when the last-sent
// watermark write fails after a confirmed send. The email already left the
// building, so this is reported and swallowed.
func NewWatermarkUpdateFailedError(userID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeWatermarkUpdateFailed,
		Message:   "Failed to persist reminder watermark",
		Details:   fmt.Sprintf("userId: %s, error: %s", userID, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuditLogWriteFailedError creates the error logged when the best-effort
// audit append fails.
func NewAuditLogWriteFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuditLogWriteFailed,
		Message:   "Failed to append email audit entry",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDispatchLockHeldError is returned when an overlapping cycle still holds
// the single-flight lock.
func NewDispatchLockHeldError() *StandardError {
	return &StandardError{
		Code:      ErrCodeDispatchLockHeld,
		Message:   "Dispatch cycle already in flight",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationFailedError creates a non-retryable request validation error.
func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification helpers
// ==========================

// IsCycleFatal reports whether an error should abort the whole dispatch
// cycle rather than just the current user.
func IsCycleFatal(err error) bool {
	stdErr, ok := err.(*StandardError)
	if !ok {
		return false
	}
	switch stdErr.Code {
	case ErrCodePreferencesLoadFailed, ErrCodePromiseQueryFailed, ErrCodeProfileLoadFailed:
		return true
	}
	return false
}

// GetErrorCategory maps codes to coarse categories used in log fields.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodePreferencesLoadFailed, ErrCodePromiseQueryFailed,
		ErrCodeProfileLoadFailed, ErrCodeHistoryQueryFailed,
		ErrCodeDatabaseConnectionFailed:
		return "persistence"
	case ErrCodeEmailSendFailed, ErrCodeEmailSendTimeout:
		return "transport"
	case ErrCodeWatermarkUpdateFailed, ErrCodeAuditLogWriteFailed:
		return "post-send"
	case ErrCodeProfileNotFound, ErrCodeUnknownTimezone, ErrCodeTemplateNotFound:
		return "configuration"
	default:
		return "internal"
	}
}
