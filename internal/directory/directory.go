// Package directory holds the user accounts that act on syllabi and resolves
// the reviewer responsible for each workflow stage.
package directory

import (
	"context"
	"strings"
	"time"

	"github.com/FallSteph/Syllabuksu/internal/validation"
	"github.com/FallSteph/Syllabuksu/model"
)

// UserStore persists users. FindActiveUserByRole never returns archived
// users.
type UserStore interface {
	GetUser(ctx context.Context, id string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	FindActiveUserByRole(ctx context.Context, role model.Role, scope model.Scope) (model.User, bool, error)

	Create(ctx context.Context, u model.User) (model.User, error)
	List(ctx context.Context, filters model.UserFilters) ([]model.User, error)
	Update(ctx context.Context, id string, patch model.UserPatch) (model.User, error)
	SetStatus(ctx context.Context, id string, status model.UserStatus) (model.User, error)
}

// Prepare normalises a new user and fills defaults. The result still has
// to pass Validate.
func Prepare(u model.User, id string, now time.Time) model.User {
	u.ID = id
	u.Email = model.NormalizeEmail(u.Email)
	u.FirstName = strings.TrimSpace(u.FirstName)
	u.LastName = strings.TrimSpace(u.LastName)
	u.College = strings.TrimSpace(u.College)
	u.Department = strings.TrimSpace(u.Department)
	if u.Status == "" {
		u.Status = model.UserActive
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	return u
}

// Validate checks a user record before it is stored.
func Validate(u model.User) error {
	var details []model.FieldError
	if fe := validation.Var("email", u.Email, "required,email"); fe != nil {
		details = append(details, *fe)
	}
	if fe := validation.Var("first_name", u.FirstName, "notblank"); fe != nil {
		details = append(details, *fe)
	}
	if fe := validation.Var("last_name", u.LastName, "notblank"); fe != nil {
		details = append(details, *fe)
	}
	if !u.Role.Valid() {
		details = append(details, model.FieldError{
			Field:   "role",
			Code:    "ROLE",
			Message: "role must be one of faculty, dept_head, dean, citl, vpaa, admin",
		})
	}
	if u.Role.RequiresAffiliation() {
		if u.College == "" {
			details = append(details, affiliationError("college", u.Role))
		}
		if u.Department == "" {
			details = append(details, affiliationError("department", u.Role))
		}
	}
	if u.Status != model.UserActive && u.Status != model.UserArchived {
		details = append(details, model.FieldError{
			Field:   "status",
			Code:    "STATUS",
			Message: "status must be active or archived",
		})
	}
	if len(details) > 0 {
		return model.NewValidationError(details)
	}
	return nil
}

func affiliationError(field string, role model.Role) model.FieldError {
	return model.FieldError{
		Field:   field,
		Code:    "REQUIRED",
		Message: field + " is required for role " + string(role),
	}
}

func lessByName(a, b model.User) bool {
	al, bl := strings.ToLower(a.LastName), strings.ToLower(b.LastName)
	if al != bl {
		return al < bl
	}
	af, bf := strings.ToLower(a.FirstName), strings.ToLower(b.FirstName)
	if af != bf {
		return af < bf
	}
	return a.ID < b.ID
}

func matchesFilters(u model.User, f model.UserFilters) bool {
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	if f.Status != "" && u.Status != f.Status {
		return false
	}
	return model.Scope{College: f.College, Department: f.Department}.Matches(u)
}
