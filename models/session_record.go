package models

import "time"

// SessionRecord is the persisted form of one browser session.
// Data is opaque to storage; the session package owns its encoding.
type SessionRecord struct {
	ID        string    `json:"id" db:"id"`
	Data      []byte    `json:"-" db:"data"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the SessionRecord model
func (SessionRecord) TableName() string {
	return "portal_sessions"
}

// NewSessionRecord creates a SessionRecord stamped with the current time
func NewSessionRecord(id string, data []byte, expiresAt time.Time) *SessionRecord {
	now := time.Now().UTC()
	return &SessionRecord{
		ID:        id,
		Data:      data,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Expired reports whether the record is past its expiry at now
func (s *SessionRecord) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
