package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID     = "invalid"     // Invalid input or validation failure
	ENOTFOUND    = "not_found"   // Account or record not found
	ECONFLICT    = "conflict"    // Record conflict (e.g., already finalized)
	EPAYMENT     = "payment"     // Plan limit reached, upgrade required
	EUNAVAILABLE = "unavailable" // Transient store failure, safe to retry
	EPARTIAL     = "partial"     // Quota charged but the result was not saved
	EINTERNAL    = "internal"    // Internal server error
)

// Sentinel errors. Match with errors.Is.
var (
	// ErrAlreadyFinalized is returned by Finalize when the target record no
	// longer holds a pending analysis. Callers treat it as success.
	ErrAlreadyFinalized = errors.New("record already finalized")

	// ErrUnknownFeature means a feature id outside the catalog reached the
	// quota ledger. It is a programmer error.
	ErrUnknownFeature = errors.New("unknown feature")
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "quota.try_consume")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
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

// ErrorCode returns the code of the outermost Error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
// Internal and transient failures get a generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Code {
		case EINTERNAL, EUNAVAILABLE:
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the outermost Error, if any.
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

// =============================================================================
// Quota errors
// =============================================================================

// LimitError describes a denied quota consumption in enough detail to render
// a specific upgrade message.
type LimitError struct {
	Feature Feature
	Plan    PlanID
	Limit   int64
	Used    int64
	Reason  DenyReason
}

func (e *LimitError) Error() string {
	if e.Reason == DenyNotIncluded {
		return fmt.Sprintf("%s is not included in the %s plan", e.Feature, e.Plan)
	}
	return fmt.Sprintf("%s limit of %d reached on the %s plan", e.Feature, e.Limit, e.Plan)
}

// QuotaExceeded creates the user-facing LimitReached error.
func QuotaExceeded(op string, le *LimitError) *Error {
	return &Error{
		Code:    EPAYMENT,
		Op:      op,
		Message: le.Error(),
		Err:     le,
	}
}

// AsLimitError extracts the LimitError from err, if any.
func AsLimitError(err error) (*LimitError, bool) {
	var le *LimitError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// ChargedNotSaved reports that TryConsume succeeded but the ledger append did
// not. The charged unit is not refunded.
func ChargedNotSaved(err error, op string, feature Feature) *Error {
	return &Error{
		Code:    EPARTIAL,
		Op:      op,
		Message: fmt.Sprintf("your %s quota was charged but the result was not saved", feature),
		Err:     err,
	}
}

// =============================================================================
// Convenience constructors
// =============================================================================

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// AccountNotFound is fatal to the caller and never retried.
func AccountNotFound(op, accountID string) *Error {
	return NotFound(op, "account", accountID)
}

// AlreadyFinalized creates the error returned to the loser of a Finalize race.
func AlreadyFinalized(op, recordID string) *Error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: fmt.Sprintf("record %q already finalized", recordID),
		Err:     ErrAlreadyFinalized,
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

// UnknownFeature creates the programmer-error for a feature outside the catalog.
func UnknownFeature(op string, f Feature) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: fmt.Sprintf("unknown feature %q", f),
		Err:     ErrUnknownFeature,
	}
}

// Unavailable wraps a transient store failure. Safe to retry.
func Unavailable(err error, op, message string) *Error {
	return &Error{
		Code:    EUNAVAILABLE,
		Op:      op,
		Message: message,
		Err:     err,
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

// IsNotFound reports whether err carries ENOTFOUND.
func IsNotFound(err error) bool {
	return ErrorCode(err) == ENOTFOUND
}

// IsAlreadyFinalized reports whether err is the AlreadyFinalized outcome.
func IsAlreadyFinalized(err error) bool {
	return errors.Is(err, ErrAlreadyFinalized)
}

// IsTransient reports whether err is a TransientStoreError.
func IsTransient(err error) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Code == EUNAVAILABLE {
			return true
		}
		err = e.Err
	}
	return false
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
