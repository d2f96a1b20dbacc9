package workflow

import (
	"context"

	"github.com/FallSteph/Syllabuksu/model"
)

// SyllabusStore persists syllabi and their review history.
type SyllabusStore interface {
	// Create persists a new syllabus together with any review history it
	// already carries. Returns CONFLICT if the ID is taken.
	Create(ctx context.Context, s model.Syllabus) error

	// Get retrieves a syllabus with its full review history. Returns
	// NOT_FOUND if it doesn't exist.
	Get(ctx context.Context, id string) (model.Syllabus, error)

	// Save persists a transitioned syllabus with optimistic locking. s.Version
	// must equal the stored version and the stored status must equal
	// expected; otherwise CONFLICT is returned and nothing is written. Review
	// actions beyond the stored history are appended. The saved syllabus is
	// returned with its version incremented.
	Save(ctx context.Context, s model.Syllabus, expected model.SyllabusStatus) (model.Syllabus, error)

	// List returns summaries matching filters, most recently updated first.
	List(ctx context.Context, filters model.SyllabusFilters) ([]model.SyllabusSummary, error)
}
