// Package apperr defines the error taxonomy shared by the lifecycle engine
// and the HTTP layer. Business-rule failures are ordinary error values so
// callers can branch on them; only storage failures wrap an underlying cause.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindForbidden
	KindInvalidTransition
	KindValidation
	KindStorage
)

// Error is an application error with a taxonomy kind. Conflict errors carry
// the identity of the job currently holding the contested partner when it
// could be determined.
type Error struct {
	Kind          Kind
	Message       string
	ConflictJobID int64
	Cause         error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NotFound reports a missing job, partner, or related record
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports an exclusivity violation; jobID is the job currently
// bound to the partner, or 0 if unknown.
func Conflict(jobID int64, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, ConflictJobID: jobID, Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports an authorization failure
func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition reports a state machine precondition violation
func InvalidTransition(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

// Validation reports malformed or incomplete input
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps an unexpected database failure. The enclosing transaction
// must have been rolled back in full before this is returned to a caller.
func Storage(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindStorage, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the taxonomy kind from an error chain
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// HTTPStatus maps an error to the status code surfaced at the API boundary
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidTransition, KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
