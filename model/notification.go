package model

import "time"

// Notification is an in-app message addressed to a single user. It is never
// deleted, only marked read.
type Notification struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	SyllabusID string     `json:"syllabus_id,omitempty"`
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
