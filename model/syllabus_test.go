package model

import "testing"

func TestSyllabusStatus_Valid(t *testing.T) {
	for _, s := range AllStatuses {
		if !s.Valid() {
			t.Errorf("%q.Valid() = false, want true", s)
		}
	}
	if SyllabusStatus("archived").Valid() {
		t.Error(`"archived".Valid() = true, want false`)
	}
	if len(AllStatuses) != 8 {
		t.Errorf("len(AllStatuses) = %d, want 8", len(AllStatuses))
	}
}

func TestSyllabusStatus_IsTerminal(t *testing.T) {
	for _, s := range AllStatuses {
		want := s == StatusApproved
		if got := s.IsTerminal(); got != want {
			t.Errorf("%q.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}

func TestSyllabus_Clone_isolatesHistory(t *testing.T) {
	score := 87.5
	orig := Syllabus{
		ID:              "syl-1",
		ComplianceScore: &score,
		ReviewHistory:   []ReviewAction{{ID: "ra-1", Kind: ReviewForwarded}},
	}
	cp := orig.Clone()
	cp.ReviewHistory = append(cp.ReviewHistory, ReviewAction{ID: "ra-2"})
	cp.ReviewHistory[0].Comment = "changed"
	*cp.ComplianceScore = 10

	if len(orig.ReviewHistory) != 1 {
		t.Errorf("original history length = %d, want 1", len(orig.ReviewHistory))
	}
	if orig.ReviewHistory[0].Comment != "" {
		t.Errorf("original history mutated: %+v", orig.ReviewHistory[0])
	}
	if *orig.ComplianceScore != 87.5 {
		t.Errorf("original score mutated: %v", *orig.ComplianceScore)
	}
}

func TestAction_Valid(t *testing.T) {
	for _, a := range []Action{ActionSubmit, ActionForward, ActionApprove, ActionReturn, ActionResubmit} {
		if !a.Valid() {
			t.Errorf("%q.Valid() = false, want true", a)
		}
	}
	if Action("reject").Valid() {
		t.Error(`"reject".Valid() = true, want false`)
	}
}
