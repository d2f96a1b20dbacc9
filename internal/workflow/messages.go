package workflow

import (
	"fmt"

	"github.com/FallSteph/Syllabuksu/model"
)

// Message is the title and body of a notification.
type Message struct {
	Title string
	Body  string
}

// ReviewerMessage returns the notification sent to the reviewer a syllabus
// has just been routed to.
func ReviewerMessage(status model.SyllabusStatus, s model.Syllabus) Message {
	switch status {
	case model.StatusUnderReviewDeptHead:
		return Message{
			Title: "New Syllabus for Review",
			Body:  fmt.Sprintf("New syllabus %q from %s requires your review.", s.CourseCode+" - "+s.CourseTitle, s.FacultyName),
		}
	case model.StatusUnderReviewDean:
		return Message{
			Title: "New Syllabus for Review",
			Body:  fmt.Sprintf("New syllabus %q from %s requires your review", s.CourseCode, s.Department),
		}
	case model.StatusUnderReviewCITL:
		return Message{
			Title: "New Syllabus for Review",
			Body:  fmt.Sprintf("New syllabus %q from %s requires CITL review", s.CourseCode, s.College),
		}
	case model.StatusUnderReviewVPAA:
		return Message{
			Title: "New Syllabus for Final Approval",
			Body:  fmt.Sprintf("Syllabus %q requires VPAA final approval", s.CourseCode),
		}
	}
	return Message{
		Title: "Syllabus Status Changed",
		Body:  fmt.Sprintf("Syllabus %q is now %s", s.CourseCode, status.Label()),
	}
}

// OwnerMessage returns the notification sent to the owning faculty member
// when a syllabus is returned or approved.
func OwnerMessage(s model.Syllabus) Message {
	switch s.Status {
	case model.StatusApproved:
		return Message{
			Title: "Syllabus Fully Approved",
			Body:  fmt.Sprintf("Your syllabus %q has been fully approved and is ready for printing", s.CourseCode),
		}
	case model.StatusReturned:
		return Message{
			Title: "Syllabus Returned for Revision",
			Body:  fmt.Sprintf("Your syllabus %q has been returned with feedback. Please review and resubmit.", s.CourseCode),
		}
	}
	return Message{
		Title: "Syllabus Status Changed",
		Body:  fmt.Sprintf("Your syllabus %q is now %s", s.CourseCode, s.Status.Label()),
	}
}

// SubmittedMessage confirms to the owning faculty member that a syllabus
// reached its first reviewer.
func SubmittedMessage(s model.Syllabus, reviewer model.User) Message {
	return Message{
		Title: "Syllabus Submitted Successfully",
		Body:  fmt.Sprintf("Your syllabus %q has been submitted to %s for review.", s.CourseCode, reviewer.DisplayName()),
	}
}
