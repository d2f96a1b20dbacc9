package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FallSteph/Syllabuksu/model"
)

// MemoryUserStore is an in-memory UserStore.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]model.User // key: user ID
	now   func() time.Time
}

// NewMemoryUserStore creates a store seeded with users. Seed users are
// normalised but not validated.
func NewMemoryUserStore(seed ...model.User) *MemoryUserStore {
	s := &MemoryUserStore{
		users: make(map[string]model.User),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, u := range seed {
		id := u.ID
		if id == "" {
			id = uuid.New().String()
		}
		u = Prepare(u, id, s.now())
		s.users[u.ID] = u
	}
	return s
}

// GetUser retrieves a user by ID.
func (s *MemoryUserStore) GetUser(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return model.User{}, model.NewNotFoundError(fmt.Sprintf("user %q not found", id))
	}
	return u, nil
}

// GetByEmail retrieves a user by email, ignoring case.
func (s *MemoryUserStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = model.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, model.NewNotFoundError(fmt.Sprintf("no user with email %q", email))
}

// FindActiveUserByRole returns the first active user, ordered by name, that
// holds role inside scope.
func (s *MemoryUserStore) FindActiveUserByRole(_ context.Context, role model.Role, scope model.Scope) (model.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []model.User
	for _, u := range s.users {
		if u.Role == role && u.IsActive() && scope.Matches(u) {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return model.User{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return lessByName(candidates[i], candidates[j]) })
	return candidates[0], true, nil
}

// Create validates and stores a new user. The ID is generated when empty.
func (s *MemoryUserStore) Create(_ context.Context, u model.User) (model.User, error) {
	id := u.ID
	if id == "" {
		id = uuid.New().String()
	}
	u = Prepare(u, id, s.now())
	if err := Validate(u); err != nil {
		return model.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return model.User{}, model.NewConflictError(fmt.Sprintf("user %q already exists", u.ID))
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return model.User{}, model.NewConflictError(fmt.Sprintf("email %q is already registered", u.Email))
		}
	}
	s.users[u.ID] = u
	return u, nil
}

// List returns users matching filters sorted by last name, then first name.
func (s *MemoryUserStore) List(_ context.Context, filters model.UserFilters) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []model.User{}
	for _, u := range s.users {
		if matchesFilters(u, filters) {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return lessByName(result[i], result[j]) })
	return result, nil
}

// Update applies patch to the user and validates the result.
func (s *MemoryUserStore) Update(_ context.Context, id string, patch model.UserPatch) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return model.User{}, model.NewNotFoundError(fmt.Sprintf("user %q not found", id))
	}
	updated := Prepare(patch.Apply(u), id, u.CreatedAt)
	if err := Validate(updated); err != nil {
		return model.User{}, err
	}
	s.users[id] = updated
	return updated, nil
}

// SetStatus archives or reactivates a user.
func (s *MemoryUserStore) SetStatus(ctx context.Context, id string, status model.UserStatus) (model.User, error) {
	return s.Update(ctx, id, model.UserPatch{Status: &status})
}

// Len returns the total number of users. For testing.
func (s *MemoryUserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
