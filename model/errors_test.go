package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	var err error = NewNotFoundError("Syllabus not found")
	if got := err.Error(); got != "NOT_FOUND: Syllabus not found" {
		t.Errorf("Error() = %q", got)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err      *ErrorEnvelope
		code     string
		contains string
	}{
		{NewBadRequestError("bad json"), ErrBadRequest, "bad json"},
		{NewUnauthorizedError("missing token"), ErrUnauthorized, "missing token"},
		{NewForbiddenError("denied"), ErrForbidden, "denied"},
		{NewNotFoundError("no such syllabus"), ErrNotFound, "no such syllabus"},
		{NewConflictError("stale"), ErrConflict, "stale"},
		{NewInternalError(), ErrInternalError, "unexpected"},
		{NewRoleMismatchError(RoleDeptHead, RoleDean), ErrRoleMismatch, "Dept. Head"},
		{NewRoleMismatchError("", RoleFaculty), ErrRoleMismatch, `"faculty"`},
		{NewScopeMismatchError("other department"), ErrScopeMismatch, "other department"},
		{NewIllegalActionError(ActionApprove, StatusUnderReviewDeptHead), ErrIllegalAction, `"approve"`},
		{NewMissingCommentError(20), ErrMissingComment, "Return reason must be at least 20 characters"},
		{NewMissingSignatureError(), ErrMissingSignature, "signature"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if !strings.Contains(tt.err.Message, tt.contains) {
				t.Errorf("Message = %q, want it to contain %q", tt.err.Message, tt.contains)
			}
		})
	}
}

func TestNewBadRequestError_keepsPercentSigns(t *testing.T) {
	if got := NewBadRequestError("score must be 0-100%").Message; got != "score must be 0-100%" {
		t.Errorf("Message = %q", got)
	}
}

func TestNewValidationError(t *testing.T) {
	e := NewValidationError([]FieldError{{Field: "course_code", Code: "required", Message: "course_code is a required field"}})
	if e.Code != ErrValidationError || len(e.Details) != 1 || e.Details[0].Field != "course_code" {
		t.Errorf("envelope = %+v", e)
	}
}

func TestErrorMatching(t *testing.T) {
	wrapped := fmt.Errorf("save syllabus: %w", NewConflictError("stale"))

	if !IsCode(wrapped, ErrConflict) || IsCode(wrapped, ErrNotFound) {
		t.Error("IsCode should match only the wrapped code")
	}
	if !errors.Is(wrapped, &ErrorEnvelope{Code: ErrConflict}) {
		t.Error("errors.Is should match by code")
	}
	if IsCode(errors.New("plain"), ErrConflict) {
		t.Error("plain errors carry no code")
	}

	ee, ok := AsEnvelope(fmt.Errorf("outer: %w", NewMissingSignatureError()))
	if !ok || ee.Code != ErrMissingSignature {
		t.Errorf("AsEnvelope() = %v, %v", ee, ok)
	}
	if ee, ok := AsEnvelope(errors.New("plain")); ok || ee != nil {
		t.Errorf("AsEnvelope(plain) = %v, %v", ee, ok)
	}
}
