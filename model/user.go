package model

import (
	"strings"
	"time"
)

// Role classifies a user of the system.
type Role string

// User roles.
const (
	RoleFaculty  Role = "faculty"
	RoleDeptHead Role = "dept_head"
	RoleDean     Role = "dean"
	RoleCITL     Role = "citl"
	RoleVPAA     Role = "vpaa"
	RoleAdmin    Role = "admin"
)

// AllRoles lists every role.
var AllRoles = []Role{RoleFaculty, RoleDeptHead, RoleDean, RoleCITL, RoleVPAA, RoleAdmin}

var roleLabels = map[Role]string{
	RoleFaculty:  "Faculty",
	RoleDeptHead: "Dept. Head",
	RoleDean:     "Dean",
	RoleCITL:     "CITL",
	RoleVPAA:     "VPAA",
	RoleAdmin:    "Administrator",
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// IsReviewer reports whether r belongs to the reviewer chain.
func (r Role) IsReviewer() bool {
	switch r {
	case RoleDeptHead, RoleDean, RoleCITL, RoleVPAA:
		return true
	}
	return false
}

// RequiresAffiliation reports whether users with role r must belong to a
// college and department.
func (r Role) RequiresAffiliation() bool {
	switch r {
	case RoleFaculty, RoleDeptHead, RoleDean:
		return true
	}
	return false
}

// Label returns the display name of the role.
func (r Role) Label() string {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	return string(r)
}

// UserStatus is the lifecycle state of a user account.
type UserStatus string

// User account states.
const (
	UserActive   UserStatus = "active"
	UserArchived UserStatus = "archived"
)

// User is an account known to the directory.
type User struct {
	ID                   string     `json:"id"`
	EmployeeID           string     `json:"employee_id,omitempty"`
	FirstName            string     `json:"first_name"`
	LastName             string     `json:"last_name"`
	Email                string     `json:"email"`
	Role                 Role       `json:"role"`
	College              string     `json:"college"`
	Department           string     `json:"department"`
	Status               UserStatus `json:"status"`
	NotificationsEnabled bool       `json:"notifications_enabled"`
	CreatedAt            time.Time  `json:"created_at"`
}

// DisplayName returns the user's full name, falling back to the email.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// IsActive reports whether the account is not archived.
func (u User) IsActive() bool {
	return u.Status != UserArchived
}

// Scope restricts a directory lookup to an affiliation. Empty fields match
// any value.
type Scope struct {
	College    string `json:"college,omitempty"`
	Department string `json:"department,omitempty"`
}

// Matches reports whether u falls inside the scope.
func (s Scope) Matches(u User) bool {
	if s.College != "" && !strings.EqualFold(s.College, u.College) {
		return false
	}
	if s.Department != "" && !strings.EqualFold(s.Department, u.Department) {
		return false
	}
	return true
}

// UserPatch carries optional updates to a user. Nil fields are left
// unchanged.
type UserPatch struct {
	FirstName            *string
	LastName             *string
	Role                 *Role
	College              *string
	Department           *string
	Status               *UserStatus
	NotificationsEnabled *bool
}

// Apply returns u with the patch applied.
func (p UserPatch) Apply(u User) User {
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.College != nil {
		u.College = *p.College
	}
	if p.Department != nil {
		u.Department = *p.Department
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	if p.NotificationsEnabled != nil {
		u.NotificationsEnabled = *p.NotificationsEnabled
	}
	return u
}

// UserFilters narrow a user listing. Empty fields are ignored.
type UserFilters struct {
	Role       Role
	College    string
	Department string
	Status     UserStatus
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
