// Package notification stores in-app notifications and delivers their email
// copies.
package notification

import (
	"context"

	"github.com/FallSteph/Syllabuksu/model"
)

// Store persists notifications. Notifications are never deleted.
type Store interface {
	Create(ctx context.Context, n model.Notification) error

	// ListForUser returns the user's notifications, newest first. A limit of
	// zero means no limit.
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error)

	// MarkRead marks one of the user's notifications read. Marking an
	// already-read notification again is not an error.
	MarkRead(ctx context.Context, userID, id string) (model.Notification, error)

	// MarkAllRead marks every unread notification of the user read and
	// returns how many changed.
	MarkAllRead(ctx context.Context, userID string) (int, error)

	UnreadCount(ctx context.Context, userID string) (int, error)
}
