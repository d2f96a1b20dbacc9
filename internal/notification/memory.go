package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/FallSteph/Syllabuksu/model"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu     sync.RWMutex
	byUser map[string][]model.Notification // key: user ID, insertion order
	now    func() time.Time
}

// NewMemoryStore creates a new in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUser: make(map[string][]model.Notification),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a notification.
func (s *MemoryStore) Create(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byUser[n.UserID] {
		if existing.ID == n.ID {
			return model.NewConflictError(fmt.Sprintf("notification %q already exists", n.ID))
		}
	}
	s.byUser[n.UserID] = append(s.byUser[n.UserID], n)
	return nil
}

// ListForUser returns the user's notifications, newest first.
func (s *MemoryStore) ListForUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []model.Notification{}
	for _, n := range s.byUser[userID] {
		if unreadOnly && n.IsRead {
			continue
		}
		result = append(result, n)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// MarkRead marks a notification read.
func (s *MemoryStore) MarkRead(_ context.Context, userID, id string) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byUser[userID]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if !list[i].IsRead {
			now := s.now()
			list[i].IsRead = true
			list[i].ReadAt = &now
		}
		return list[i], nil
	}
	return model.Notification{}, model.NewNotFoundError(fmt.Sprintf("notification %q not found", id))
}

// MarkAllRead marks every unread notification of the user read.
func (s *MemoryStore) MarkAllRead(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	changed := 0
	list := s.byUser[userID]
	for i := range list {
		if list[i].IsRead {
			continue
		}
		list[i].IsRead = true
		list[i].ReadAt = &now
		changed++
	}
	return changed, nil
}

// UnreadCount returns the number of unread notifications of the user.
func (s *MemoryStore) UnreadCount(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.byUser[userID] {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}
