package models

import "time"

// SessionStatus enumerates the lifecycle states of a session document.
type SessionStatus string

const (
	StatusDraft     SessionStatus = "draft"
	StatusPublished SessionStatus = "published"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s SessionStatus) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// User carries the account fields safe to hand to API code. The password
// hash lives in the storage layer's persisted record, not here.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Title       string        `json:"title"`
	Tags        []string      `json:"tags"`
	JSONFileURL string        `json:"json_file_url"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
