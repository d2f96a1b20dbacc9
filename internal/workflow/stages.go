package workflow

import (
	"github.com/FallSteph/Syllabuksu/model"
)

const finalStageOrder = 6

var stageOrder = map[model.SyllabusStatus]int{
	model.StatusDraft:               0,
	model.StatusSubmitted:           1,
	model.StatusUnderReviewDeptHead: 2,
	model.StatusUnderReviewDean:     3,
	model.StatusUnderReviewCITL:     4,
	model.StatusUnderReviewVPAA:     5,
	model.StatusApproved:            6,
	model.StatusReturned:            -1,
}

// Stage describes one status on the workflow timeline.
type Stage struct {
	Status       model.SyllabusStatus `json:"status"`
	Label        string               `json:"label"`
	Order        int                  `json:"order"`
	Progress     int                  `json:"progress"`
	ReviewerRole model.Role           `json:"reviewer_role,omitempty"`
	Actions      []model.Action       `json:"actions,omitempty"`
	Terminal     bool                 `json:"terminal,omitempty"`
}

// StageOf returns the timeline position of status. Returned syllabi sit
// outside the timeline with order -1 and zero progress.
func StageOf(status model.SyllabusStatus) Stage {
	order, ok := stageOrder[status]
	if !ok {
		order = -1
	}
	progress := 0
	if order > 0 {
		progress = order * 100 / finalStageOrder
	}
	return Stage{
		Status:   status,
		Label:    status.Label(),
		Order:    order,
		Progress: progress,
		Terminal: status.IsTerminal(),
	}
}

// Stages returns every status with its reviewer and legal actions under t.
func (t *Table) Stages() []Stage {
	out := make([]Stage, 0, len(model.AllStatuses))
	for _, status := range model.AllStatuses {
		st := StageOf(status)
		if role, ok := t.ReviewerRole(status); ok {
			st.ReviewerRole = role
		}
		st.Actions = t.AllowedActions(status)
		out = append(out, st)
	}
	return out
}
