package workflow

import (
	"github.com/FallSteph/Syllabuksu/model"
)

// DefaultMinReturnCommentLength is the shortest return reason accepted when
// TableOptions leaves MinReturnCommentLength unset.
const DefaultMinReturnCommentLength = 20

// Rule is one row of the transition table: an actor holding Role may apply
// Action to a syllabus in From, moving it to To and recording Kind in the
// review history.
type Rule struct {
	From   model.SyllabusStatus
	Role   model.Role
	Action model.Action
	To     model.SyllabusStatus
	Kind   model.ReviewKind

	// DefaultComment is recorded when the actor leaves the comment empty.
	DefaultComment string
}

// OwnerOnly reports whether only the owning faculty member may apply the rule.
func (r Rule) OwnerOnly() bool {
	return r.Role == model.RoleFaculty
}

// TableOptions configures deployment variants of the reviewer chain.
type TableOptions struct {
	// CITLDirectApprove lets CITL approve a syllabus outright instead of
	// forwarding it to the VPAA.
	CITLDirectApprove bool

	// MinReturnCommentLength is the minimum number of characters a return
	// reason must contain. Zero means DefaultMinReturnCommentLength.
	MinReturnCommentLength int
}

type ruleKey struct {
	from   model.SyllabusStatus
	action model.Action
}

// Table is the immutable transition table of the reviewer chain. It is safe
// for concurrent use.
type Table struct {
	rules            []Rule
	index            map[ruleKey]Rule
	reviewers        map[model.SyllabusStatus]model.Role
	minCommentLength int
}

func baseRules() []Rule {
	return []Rule{
		{From: model.StatusDraft, Role: model.RoleFaculty, Action: model.ActionSubmit, To: model.StatusUnderReviewDeptHead, Kind: model.ReviewForwarded, DefaultComment: "Submitted for department head review"},
		{From: model.StatusUnderReviewDeptHead, Role: model.RoleDeptHead, Action: model.ActionForward, To: model.StatusUnderReviewDean, Kind: model.ReviewForwarded, DefaultComment: "Forwarded to Dean for review"},
		{From: model.StatusUnderReviewDeptHead, Role: model.RoleDeptHead, Action: model.ActionReturn, To: model.StatusReturned, Kind: model.ReviewReturned},
		{From: model.StatusUnderReviewDean, Role: model.RoleDean, Action: model.ActionForward, To: model.StatusUnderReviewCITL, Kind: model.ReviewForwarded, DefaultComment: "Forwarded to CITL for review"},
		{From: model.StatusUnderReviewDean, Role: model.RoleDean, Action: model.ActionReturn, To: model.StatusReturned, Kind: model.ReviewReturned},
		{From: model.StatusUnderReviewCITL, Role: model.RoleCITL, Action: model.ActionForward, To: model.StatusUnderReviewVPAA, Kind: model.ReviewForwarded, DefaultComment: "Forwarded to VPAA for final approval"},
		{From: model.StatusUnderReviewCITL, Role: model.RoleCITL, Action: model.ActionReturn, To: model.StatusReturned, Kind: model.ReviewReturned},
		{From: model.StatusUnderReviewVPAA, Role: model.RoleVPAA, Action: model.ActionApprove, To: model.StatusApproved, Kind: model.ReviewApproved, DefaultComment: "Final approval granted"},
		{From: model.StatusUnderReviewVPAA, Role: model.RoleVPAA, Action: model.ActionReturn, To: model.StatusReturned, Kind: model.ReviewReturned},
		{From: model.StatusReturned, Role: model.RoleFaculty, Action: model.ActionResubmit, To: model.StatusUnderReviewDeptHead, Kind: model.ReviewForwarded, DefaultComment: "Resubmitted for department head review"},
	}
}

// NewTable builds the transition table for the given options.
func NewTable(opts TableOptions) *Table {
	rules := baseRules()
	if opts.CITLDirectApprove {
		rules = append(rules, Rule{
			From: model.StatusUnderReviewCITL, Role: model.RoleCITL, Action: model.ActionApprove,
			To: model.StatusApproved, Kind: model.ReviewApproved, DefaultComment: "Final approval granted",
		})
	}

	minLen := opts.MinReturnCommentLength
	if minLen <= 0 {
		minLen = DefaultMinReturnCommentLength
	}

	t := &Table{
		rules:            rules,
		index:            make(map[ruleKey]Rule, len(rules)),
		reviewers:        make(map[model.SyllabusStatus]model.Role),
		minCommentLength: minLen,
	}
	for _, r := range rules {
		t.index[ruleKey{r.From, r.Action}] = r
		t.reviewers[r.From] = r.Role
	}
	return t
}

// Lookup returns the rule for applying action in status.
func (t *Table) Lookup(status model.SyllabusStatus, action model.Action) (Rule, bool) {
	r, ok := t.index[ruleKey{status, action}]
	return r, ok
}

// ReviewerRole returns the role expected to act on a syllabus in status. The
// faculty role is returned for draft and returned syllabi. It reports false
// for states nobody can act on.
func (t *Table) ReviewerRole(status model.SyllabusStatus) (model.Role, bool) {
	r, ok := t.reviewers[status]
	return r, ok
}

// Performs reports whether any rule lets role apply action.
func (t *Table) Performs(role model.Role, action model.Action) bool {
	for _, r := range t.rules {
		if r.Role == role && r.Action == action {
			return true
		}
	}
	return false
}

// AllowedActions returns the actions legal in status, in table order.
func (t *Table) AllowedActions(status model.SyllabusStatus) []model.Action {
	var out []model.Action
	for _, r := range t.rules {
		if r.From == status {
			out = append(out, r.Action)
		}
	}
	return out
}

// Rules returns a copy of every rule in the table.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// MinCommentLength returns the minimum return-reason length enforced by
// ApplyTransition.
func (t *Table) MinCommentLength() int {
	return t.minCommentLength
}

// NextReviewerScope returns the affiliation filter used to find the reviewer
// for a syllabus entering status. Department heads are matched on college and
// department, deans on college, CITL and VPAA reviewers are not scoped.
func NextReviewerScope(status model.SyllabusStatus, s model.Syllabus) model.Scope {
	switch status {
	case model.StatusUnderReviewDeptHead:
		return model.Scope{College: s.College, Department: s.Department}
	case model.StatusUnderReviewDean:
		return model.Scope{College: s.College}
	default:
		return model.Scope{}
	}
}
