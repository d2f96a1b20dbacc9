package workflow

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/FallSteph/Syllabuksu/model"
)

// MemorySyllabusStore is an in-memory SyllabusStore for tests and
// single-instance deployments.
type MemorySyllabusStore struct {
	mu      sync.RWMutex
	syllabi map[string]model.Syllabus // key: syllabus ID
}

// NewMemorySyllabusStore creates a new in-memory syllabus store.
func NewMemorySyllabusStore() *MemorySyllabusStore {
	return &MemorySyllabusStore{
		syllabi: make(map[string]model.Syllabus),
	}
}

// Create persists a new syllabus.
func (s *MemorySyllabusStore) Create(_ context.Context, syl model.Syllabus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.syllabi[syl.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("syllabus %q already exists", syl.ID),
		)
	}

	s.syllabi[syl.ID] = syl.Clone()
	return nil
}

// Get retrieves a syllabus by ID.
func (s *MemorySyllabusStore) Get(_ context.Context, id string) (model.Syllabus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	syl, exists := s.syllabi[id]
	if !exists {
		return model.Syllabus{}, model.NewNotFoundError(
			fmt.Sprintf("syllabus %q not found", id),
		)
	}
	return syl.Clone(), nil
}

// Save persists a transitioned syllabus with optimistic locking.
func (s *MemorySyllabusStore) Save(_ context.Context, syl model.Syllabus, expected model.SyllabusStatus) (model.Syllabus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.syllabi[syl.ID]
	if !exists {
		return model.Syllabus{}, model.NewNotFoundError(
			fmt.Sprintf("syllabus %q not found", syl.ID),
		)
	}

	// Optimistic lock check.
	if existing.Version != syl.Version || existing.Status != expected {
		return model.Syllabus{}, model.NewConflictError(
			fmt.Sprintf("syllabus %q was changed by another reviewer (now %s)", syl.ID, existing.Status.Label()),
		)
	}
	if len(syl.ReviewHistory) < len(existing.ReviewHistory) {
		return model.Syllabus{}, fmt.Errorf("save syllabus %q: review history shrank from %d to %d entries",
			syl.ID, len(existing.ReviewHistory), len(syl.ReviewHistory))
	}

	syl.Version++
	if syl.UpdatedAt.IsZero() {
		syl.UpdatedAt = time.Now().UTC()
	}
	s.syllabi[syl.ID] = syl.Clone()
	return syl, nil
}

// List returns summaries matching filters.
func (s *MemorySyllabusStore) List(_ context.Context, filters model.SyllabusFilters) ([]model.SyllabusSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []model.SyllabusSummary{}
	for _, syl := range s.syllabi {
		if !matchesFilters(syl, filters) {
			continue
		}
		result = append(result, syl.Summary())
	}

	// Sort by updated_at descending, ID as tie-breaker.
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	// Apply offset and limit.
	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.SyllabusSummary{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}

	return result, nil
}

// Len returns the total number of syllabi. For testing.
func (s *MemorySyllabusStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.syllabi)
}

func matchesFilters(syl model.Syllabus, f model.SyllabusFilters) bool {
	if f.FacultyID != "" && syl.FacultyID != f.FacultyID {
		return false
	}
	if f.College != "" && !strings.EqualFold(syl.College, f.College) {
		return false
	}
	if f.Department != "" && !strings.EqualFold(syl.Department, f.Department) {
		return false
	}
	if f.Semester != "" && syl.SemesterPeriod != f.Semester {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, syl.Status) {
		return false
	}
	return true
}
