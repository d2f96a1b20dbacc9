package model

import (
	"errors"
	"fmt"
)

// Error codes carried in ErrorEnvelope.Code. The HTTP layer maps each code
// to a status.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrForbidden       = "FORBIDDEN"
	ErrNotFound        = "NOT_FOUND"
	ErrConflict        = "CONFLICT"
	ErrValidationError = "VALIDATION_ERROR"
	ErrInternalError   = "INTERNAL_ERROR"

	ErrRoleMismatch     = "ROLE_MISMATCH"
	ErrScopeMismatch    = "SCOPE_MISMATCH"
	ErrIllegalAction    = "ILLEGAL_ACTION"
	ErrMissingComment   = "MISSING_COMMENT"
	ErrMissingSignature = "MISSING_SIGNATURE"
)

// ErrorEnvelope is both the error type shared by the service layers and the
// JSON body of a failed request.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

func (e *ErrorEnvelope) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches any envelope with the same code, so
// errors.Is(err, &ErrorEnvelope{Code: ErrConflict}) works through wrapping.
func (e *ErrorEnvelope) Is(target error) bool {
	t, ok := target.(*ErrorEnvelope)
	return ok && t.Code == e.Code
}

// FieldError is one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IsCode reports whether err wraps an ErrorEnvelope with the given code.
func IsCode(err error, code string) bool {
	return errors.Is(err, &ErrorEnvelope{Code: code})
}

// AsEnvelope unwraps err to its ErrorEnvelope.
func AsEnvelope(err error) (*ErrorEnvelope, bool) {
	var ee *ErrorEnvelope
	ok := errors.As(err, &ee)
	return ee, ok
}

func envelope(code, msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: code, Message: msg}
}

func envelopef(code, format string, args ...any) *ErrorEnvelope {
	return envelope(code, fmt.Sprintf(format, args...))
}

func NewBadRequestError(msg string) *ErrorEnvelope   { return envelope(ErrBadRequest, msg) }
func NewUnauthorizedError(msg string) *ErrorEnvelope { return envelope(ErrUnauthorized, msg) }
func NewForbiddenError(msg string) *ErrorEnvelope    { return envelope(ErrForbidden, msg) }
func NewNotFoundError(msg string) *ErrorEnvelope     { return envelope(ErrNotFound, msg) }
func NewConflictError(msg string) *ErrorEnvelope     { return envelope(ErrConflict, msg) }

// NewValidationError wraps per-field failures from request validation.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	e := envelope(ErrValidationError, "One or more fields are invalid")
	e.Details = details
	return e
}

// NewInternalError hides the cause; log it before returning this.
func NewInternalError() *ErrorEnvelope {
	return envelope(ErrInternalError, "An unexpected error occurred")
}

// NewRoleMismatchError names the stage the syllabus is waiting on. An empty
// required role means no reviewer may act at all.
func NewRoleMismatchError(required, actual Role) *ErrorEnvelope {
	if required == "" {
		return envelopef(ErrRoleMismatch, "Role %q cannot act on this syllabus", actual)
	}
	return envelopef(ErrRoleMismatch, "This syllabus is awaiting %s review; role %q cannot act on it", required.Label(), actual)
}

// NewScopeMismatchError covers reviewers outside the syllabus's college or
// department and faculty acting on someone else's syllabus.
func NewScopeMismatchError(msg string) *ErrorEnvelope { return envelope(ErrScopeMismatch, msg) }

func NewIllegalActionError(action Action, status SyllabusStatus) *ErrorEnvelope {
	return envelopef(ErrIllegalAction, "Action %q is not allowed while the syllabus is %s", action, status.Label())
}

func NewMissingCommentError(minLen int) *ErrorEnvelope {
	return envelopef(ErrMissingComment, "Return reason must be at least %d characters", minLen)
}

func NewMissingSignatureError() *ErrorEnvelope {
	return envelope(ErrMissingSignature, "A reviewer signature is required to approve this syllabus")
}
