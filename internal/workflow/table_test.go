package workflow

import (
	"slices"
	"testing"

	"github.com/FallSteph/Syllabuksu/model"
)

func TestNewTable_defaults(t *testing.T) {
	table := NewTable(TableOptions{})

	if table.MinCommentLength() != DefaultMinReturnCommentLength {
		t.Errorf("MinCommentLength = %d, want %d", table.MinCommentLength(), DefaultMinReturnCommentLength)
	}
	if len(table.Rules()) != 10 {
		t.Errorf("rules = %d, want 10", len(table.Rules()))
	}
	if _, ok := table.Lookup(model.StatusUnderReviewCITL, model.ActionApprove); ok {
		t.Error("CITL approve should be disabled by default")
	}
}

func TestNewTable_citlDirectApprove(t *testing.T) {
	table := NewTable(TableOptions{CITLDirectApprove: true, MinReturnCommentLength: 30})

	r, ok := table.Lookup(model.StatusUnderReviewCITL, model.ActionApprove)
	if !ok {
		t.Fatal("expected CITL approve rule")
	}
	if r.To != model.StatusApproved || r.Role != model.RoleCITL {
		t.Errorf("rule = %+v", r)
	}
	if table.MinCommentLength() != 30 {
		t.Errorf("MinCommentLength = %d, want 30", table.MinCommentLength())
	}
}

func TestTable_chain(t *testing.T) {
	table := NewTable(TableOptions{})

	tests := []struct {
		from   model.SyllabusStatus
		action model.Action
		role   model.Role
		to     model.SyllabusStatus
	}{
		{model.StatusDraft, model.ActionSubmit, model.RoleFaculty, model.StatusUnderReviewDeptHead},
		{model.StatusUnderReviewDeptHead, model.ActionForward, model.RoleDeptHead, model.StatusUnderReviewDean},
		{model.StatusUnderReviewDean, model.ActionForward, model.RoleDean, model.StatusUnderReviewCITL},
		{model.StatusUnderReviewCITL, model.ActionForward, model.RoleCITL, model.StatusUnderReviewVPAA},
		{model.StatusUnderReviewVPAA, model.ActionApprove, model.RoleVPAA, model.StatusApproved},
		{model.StatusReturned, model.ActionResubmit, model.RoleFaculty, model.StatusUnderReviewDeptHead},
	}
	for _, tt := range tests {
		r, ok := table.Lookup(tt.from, tt.action)
		if !ok {
			t.Errorf("Lookup(%s, %s) missing", tt.from, tt.action)
			continue
		}
		if r.Role != tt.role || r.To != tt.to {
			t.Errorf("Lookup(%s, %s) = %s -> %s, want %s -> %s", tt.from, tt.action, r.Role, r.To, tt.role, tt.to)
		}
	}
}

func TestTable_everyReviewStageCanReturn(t *testing.T) {
	table := NewTable(TableOptions{})
	for _, st := range []model.SyllabusStatus{
		model.StatusUnderReviewDeptHead,
		model.StatusUnderReviewDean,
		model.StatusUnderReviewCITL,
		model.StatusUnderReviewVPAA,
	} {
		r, ok := table.Lookup(st, model.ActionReturn)
		if !ok {
			t.Errorf("%s: return missing", st)
			continue
		}
		if r.To != model.StatusReturned || r.Kind != model.ReviewReturned {
			t.Errorf("%s: return rule = %+v", st, r)
		}
	}
}

func TestTable_noExitFromApproved(t *testing.T) {
	table := NewTable(TableOptions{CITLDirectApprove: true})
	if actions := table.AllowedActions(model.StatusApproved); len(actions) != 0 {
		t.Errorf("approved actions = %v, want none", actions)
	}
	if _, ok := table.ReviewerRole(model.StatusApproved); ok {
		t.Error("approved should have no reviewer role")
	}
	if _, ok := table.ReviewerRole(model.StatusSubmitted); ok {
		t.Error("submitted should have no reviewer role")
	}
}

func TestTable_AllowedActions(t *testing.T) {
	table := NewTable(TableOptions{})
	got := table.AllowedActions(model.StatusUnderReviewVPAA)
	if !slices.Equal(got, []model.Action{model.ActionApprove, model.ActionReturn}) {
		t.Errorf("AllowedActions = %v", got)
	}
}

func TestTable_Performs(t *testing.T) {
	table := NewTable(TableOptions{})

	tests := []struct {
		role   model.Role
		action model.Action
		want   bool
	}{
		{model.RoleFaculty, model.ActionSubmit, true},
		{model.RoleFaculty, model.ActionForward, false},
		{model.RoleDeptHead, model.ActionReturn, true},
		{model.RoleDeptHead, model.ActionApprove, false},
		{model.RoleCITL, model.ActionApprove, false},
		{model.RoleVPAA, model.ActionApprove, true},
		{model.RoleAdmin, model.ActionForward, false},
	}
	for _, tt := range tests {
		if got := table.Performs(tt.role, tt.action); got != tt.want {
			t.Errorf("Performs(%s, %s) = %t, want %t", tt.role, tt.action, got, tt.want)
		}
	}
	if !NewTable(TableOptions{CITLDirectApprove: true}).Performs(model.RoleCITL, model.ActionApprove) {
		t.Error("CITL should approve when direct approval is enabled")
	}
}

func TestTable_RulesIsCopy(t *testing.T) {
	table := NewTable(TableOptions{})
	rules := table.Rules()
	rules[0].To = model.StatusApproved

	r, _ := table.Lookup(model.StatusDraft, model.ActionSubmit)
	if r.To != model.StatusUnderReviewDeptHead {
		t.Error("mutating Rules() result changed the table")
	}
}

func TestNextReviewerScope(t *testing.T) {
	s := testSyllabus(model.StatusDraft)

	if got := NextReviewerScope(model.StatusUnderReviewDeptHead, s); got != (model.Scope{College: "COT", Department: "IT"}) {
		t.Errorf("dept head scope = %+v", got)
	}
	if got := NextReviewerScope(model.StatusUnderReviewDean, s); got != (model.Scope{College: "COT"}) {
		t.Errorf("dean scope = %+v", got)
	}
	if got := NextReviewerScope(model.StatusUnderReviewCITL, s); got != (model.Scope{}) {
		t.Errorf("citl scope = %+v", got)
	}
}
