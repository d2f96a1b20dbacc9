package workflow

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FallSteph/Syllabuksu/model"
)

// Request is an actor's request to move a syllabus along the chain.
type Request struct {
	Action  model.Action
	Comment string

	// Signature is the reviewer sign-off token. Only its presence is checked.
	Signature string

	// ExpectedStatus, when set, is the status the caller read before deciding
	// on the action. A mismatch is reported as a conflict.
	ExpectedStatus model.SyllabusStatus
}

// NotifyTarget names the party responsible for the next step.
type NotifyTarget struct {
	// Owner is set when the owning faculty member must be notified.
	Owner  bool
	UserID string

	// Role and Scope identify the next reviewer when Owner is false.
	Role  model.Role
	Scope model.Scope
}

// Outcome is the result of a successful transition.
type Outcome struct {
	Syllabus model.Syllabus
	Previous model.SyllabusStatus
	Review   model.ReviewAction
	Rule     Rule
	Notify   NotifyTarget
}

// ApplyTransition validates req against the table and returns the syllabus
// as it looks after the transition. s is never modified. Preconditions are
// checked in order: stale status, actor role, ownership or scope, legal
// action, return comment, approval signature.
func ApplyTransition(
	table *Table,
	s model.Syllabus,
	actor model.User,
	req Request,
	now time.Time,
	newID func() string,
) (Outcome, error) {
	// 1. Stale read.
	if req.ExpectedStatus != "" && req.ExpectedStatus != s.Status {
		return Outcome{}, model.NewConflictError(
			fmt.Sprintf("syllabus %q is %s, not %s", s.ID, s.Status.Label(), req.ExpectedStatus.Label()),
		)
	}

	// 2. Somebody must be able to act on the current status.
	role, ok := table.ReviewerRole(s.Status)
	if !ok {
		return Outcome{}, model.NewIllegalActionError(req.Action, s.Status)
	}

	// 3. Actor must hold the role the status waits on. A reviewer repeating
	// an action this pass already recorded is reported as a conflict.
	if actor.Role != role {
		if table.Performs(actor.Role, req.Action) && actedThisPass(s, actor.Role) {
			return Outcome{}, model.NewConflictError("Syllabus has already moved past your stage")
		}
		return Outcome{}, model.NewRoleMismatchError(role, actor.Role)
	}

	// 4. Ownership and affiliation.
	if err := checkScope(role, s, actor); err != nil {
		return Outcome{}, err
	}

	// 5. Action must be legal in the current status.
	rule, ok := table.Lookup(s.Status, req.Action)
	if !ok {
		return Outcome{}, model.NewIllegalActionError(req.Action, s.Status)
	}

	// 6. Return reason.
	comment := strings.TrimSpace(req.Comment)
	if req.Action == model.ActionReturn && utf8.RuneCountInString(comment) < table.MinCommentLength() {
		return Outcome{}, model.NewMissingCommentError(table.MinCommentLength())
	}

	// 7. Sign-off.
	if req.Action == model.ActionApprove && strings.TrimSpace(req.Signature) == "" {
		return Outcome{}, model.NewMissingSignatureError()
	}

	if comment == "" {
		comment = rule.DefaultComment
	}

	review := model.ReviewAction{
		ID:           newID(),
		ReviewerID:   actor.ID,
		ReviewerName: actor.DisplayName(),
		ReviewerRole: actor.Role,
		Kind:         rule.Kind,
		Comment:      comment,
		Timestamp:    now,
	}

	next := s.Clone()
	next.ReviewHistory = append(next.ReviewHistory, review)
	next.Status = rule.To
	next.UpdatedAt = now
	if rule.To == model.StatusReturned {
		next.Feedback = comment
	}

	return Outcome{
		Syllabus: next,
		Previous: s.Status,
		Review:   review,
		Rule:     rule,
		Notify:   notifyTarget(table, next),
	}, nil
}

// actedThisPass reports whether role has an entry in the current review
// pass, which starts at the owner's latest submission.
func actedThisPass(s model.Syllabus, role model.Role) bool {
	for i := len(s.ReviewHistory) - 1; i >= 0; i-- {
		switch s.ReviewHistory[i].ReviewerRole {
		case role:
			return true
		case model.RoleFaculty:
			return false
		}
	}
	return false
}

func checkScope(role model.Role, s model.Syllabus, actor model.User) error {
	switch {
	case role == model.RoleFaculty:
		if actor.ID != s.FacultyID {
			return model.NewScopeMismatchError("Only the faculty member who uploaded this syllabus can submit it")
		}
	case actor.Role == model.RoleDeptHead:
		if !strings.EqualFold(actor.College, s.College) || !strings.EqualFold(actor.Department, s.Department) {
			return model.NewScopeMismatchError(
				fmt.Sprintf("Syllabus belongs to %s; department heads may only review their own department", s.Department),
			)
		}
	case actor.Role == model.RoleDean:
		if !strings.EqualFold(actor.College, s.College) {
			return model.NewScopeMismatchError(
				fmt.Sprintf("Syllabus belongs to %s; deans may only review their own college", s.College),
			)
		}
	}
	return nil
}

func notifyTarget(table *Table, s model.Syllabus) NotifyTarget {
	if s.Status == model.StatusReturned || s.Status == model.StatusApproved {
		return NotifyTarget{Owner: true, UserID: s.FacultyID}
	}
	role, _ := table.ReviewerRole(s.Status)
	return NotifyTarget{Role: role, Scope: NextReviewerScope(s.Status, s)}
}
