package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"      // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized" // Authentication required
	EFORBIDDEN    = "forbidden"    // Permission denied
	ENOTFOUND     = "not_found"    // Resource not found
	ECONFLICT     = "conflict"     // Resource conflict (e.g., duplicate)
	EPAYMENT      = "payment"      // Quota exhausted, upgrade required
	EUNAVAILABLE  = "unavailable"  // Upstream collaborator unreachable
	EINTERNAL     = "internal"     // Internal server error
)

// Sentinel causes carried in Error.Err so callers can match with errors.Is.
var (
	ErrUserNotFound             = errors.New("user not found")
	ErrQuotaNotFound            = errors.New("user quota not found")
	ErrConfigNotFound           = errors.New("quota configuration not found")
	ErrConfigUnavailable        = errors.New("quota configuration unavailable")
	ErrInvalidTierConfiguration = errors.New("tier has no limits configured")
	ErrServiceNotFound          = errors.New("service not found")

	// ErrTierLimitsNotFound is reported by quota provisioning; it is the same
	// condition as ErrInvalidTierConfiguration.
	ErrTierLimitsNotFound = ErrInvalidTierConfiguration
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "quota.reset")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil && msg == "" {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, op, message string) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return EINVALID
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "Validation failed."
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// UserNotFound creates a not found error for a missing user record.
func UserNotFound(op, userID string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("user %q not found", userID),
		Err:     ErrUserNotFound,
	}
}

// InvalidTierConfiguration reports a tier that has no entry in the tier limits.
// This is an operator data error, not user behaviour.
func InvalidTierConfiguration(op string, tier Tier) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: fmt.Sprintf("no tier limits configured for tier %q", tier),
		Err:     ErrInvalidTierConfiguration,
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Forbidden creates a permission error.
func Forbidden(op, message string) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: message,
	}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// QuotaExceeded is returned by feature actions that abort because the
// entitlement gate denied them. The gate itself reports denials as values.
func QuotaExceeded(op string, key ServiceKey, check QuotaCheck) *Error {
	msg := fmt.Sprintf("%s quota exhausted (%d of %d used)", key, check.Used, check.Limit)
	if check.Reason == DenialServiceUnavailable {
		msg = fmt.Sprintf("%s is not available on your plan", key)
	}
	return &Error{
		Code:    EPAYMENT,
		Op:      op,
		Message: msg,
	}
}

// ValidationError represents field-level validation errors.
type ValidationError struct {
	Op     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed", e.Op)
}

// NewValidationError creates a new validation error with the first field error.
func NewValidationError(op, field, message string) *ValidationError {
	return &ValidationError{
		Op: op,
		Fields: map[string]string{
			field: message,
		},
	}
}
