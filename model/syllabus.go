package model

import "time"

// SyllabusStatus is the position of a syllabus in the review workflow.
type SyllabusStatus string

// Syllabus workflow states.
const (
	StatusDraft               SyllabusStatus = "draft"
	StatusSubmitted           SyllabusStatus = "submitted"
	StatusUnderReviewDeptHead SyllabusStatus = "under_review_dept_head"
	StatusUnderReviewDean     SyllabusStatus = "under_review_dean"
	StatusUnderReviewCITL     SyllabusStatus = "under_review_citl"
	StatusUnderReviewVPAA     SyllabusStatus = "under_review_vpaa"
	StatusApproved            SyllabusStatus = "approved"
	StatusReturned            SyllabusStatus = "returned"
)

// AllStatuses lists every workflow state in timeline order, with returned
// last.
var AllStatuses = []SyllabusStatus{
	StatusDraft,
	StatusSubmitted,
	StatusUnderReviewDeptHead,
	StatusUnderReviewDean,
	StatusUnderReviewCITL,
	StatusUnderReviewVPAA,
	StatusApproved,
	StatusReturned,
}

var statusLabels = map[SyllabusStatus]string{
	StatusDraft:               "Draft",
	StatusSubmitted:           "Submitted",
	StatusUnderReviewDeptHead: "Under Review by Dept Head",
	StatusUnderReviewDean:     "Under Review by Dean",
	StatusUnderReviewCITL:     "Under Review by CITL",
	StatusUnderReviewVPAA:     "Under Review by VPAA",
	StatusApproved:            "Approved",
	StatusReturned:            "Returned for Revision",
}

// Valid reports whether s is one of the defined workflow states.
func (s SyllabusStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// IsTerminal reports whether no transition can leave s.
func (s SyllabusStatus) IsTerminal() bool {
	return s == StatusApproved
}

// Label returns the human-readable name of the status.
func (s SyllabusStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Action is an operation an actor requests on a syllabus.
type Action string

// Workflow actions.
const (
	ActionSubmit   Action = "submit"
	ActionForward  Action = "forward"
	ActionApprove  Action = "approve"
	ActionReturn   Action = "return"
	ActionResubmit Action = "resubmit"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionSubmit, ActionForward, ActionApprove, ActionReturn, ActionResubmit:
		return true
	}
	return false
}

// ReviewKind classifies a review-history entry.
type ReviewKind string

// Review-history entry kinds.
const (
	ReviewApproved  ReviewKind = "approved"
	ReviewReturned  ReviewKind = "returned"
	ReviewForwarded ReviewKind = "forwarded"
)

// ReviewAction is one immutable entry in a syllabus's review history.
type ReviewAction struct {
	ID           string     `json:"id"`
	ReviewerID   string     `json:"reviewer_id"`
	ReviewerName string     `json:"reviewer_name"`
	ReviewerRole Role       `json:"reviewer_role"`
	Kind         ReviewKind `json:"action"`
	Comment      string     `json:"comment,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// Syllabus is a course syllabus moving through the review workflow.
type Syllabus struct {
	ID              string         `json:"id"`
	CourseCode      string         `json:"course_code"`
	CourseTitle     string         `json:"course_title"`
	SemesterPeriod  string         `json:"semester_period"`
	College         string         `json:"college"`
	Department      string         `json:"department"`
	FacultyID       string         `json:"faculty_id"`
	FacultyName     string         `json:"faculty_name"`
	FileRef         string         `json:"file_ref"`
	Form17Link      string         `json:"form17_link,omitempty"`
	Form18Link      string         `json:"form18_link,omitempty"`
	ComplianceScore *float64       `json:"compliance_score,omitempty"`
	Status          SyllabusStatus `json:"status"`
	Feedback        string         `json:"feedback,omitempty"`
	ReviewHistory   []ReviewAction `json:"review_history"`
	Version         int            `json:"version"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Clone returns a copy of s whose review history can be appended to without
// affecting s.
func (s Syllabus) Clone() Syllabus {
	out := s
	out.ReviewHistory = make([]ReviewAction, len(s.ReviewHistory))
	copy(out.ReviewHistory, s.ReviewHistory)
	if s.ComplianceScore != nil {
		score := *s.ComplianceScore
		out.ComplianceScore = &score
	}
	return out
}

// SyllabusSummary is the list-view projection of a syllabus.
type SyllabusSummary struct {
	ID             string         `json:"id"`
	CourseCode     string         `json:"course_code"`
	CourseTitle    string         `json:"course_title"`
	SemesterPeriod string         `json:"semester_period"`
	College        string         `json:"college"`
	Department     string         `json:"department"`
	FacultyID      string         `json:"faculty_id"`
	FacultyName    string         `json:"faculty_name"`
	Status         SyllabusStatus `json:"status"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Summary projects s into a SyllabusSummary.
func (s Syllabus) Summary() SyllabusSummary {
	return SyllabusSummary{
		ID:             s.ID,
		CourseCode:     s.CourseCode,
		CourseTitle:    s.CourseTitle,
		SemesterPeriod: s.SemesterPeriod,
		College:        s.College,
		Department:     s.Department,
		FacultyID:      s.FacultyID,
		FacultyName:    s.FacultyName,
		Status:         s.Status,
		UpdatedAt:      s.UpdatedAt,
	}
}

// SyllabusFilters narrow a syllabus listing. Empty fields are ignored.
type SyllabusFilters struct {
	FacultyID  string
	College    string
	Department string
	Statuses   []SyllabusStatus
	Semester   string
	Limit      int
	Offset     int
}
