package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/upb/policy-portal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// SessionRepository persists browser sessions keyed by session ID
type SessionRepository interface {
	// Get retrieves a session record by ID. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*models.SessionRecord, error)

	// Save inserts or replaces a session record
	Save(ctx context.Context, record *models.SessionRecord) error

	// Update replaces the data and expiry of an existing record. Returns
	// ErrNotFound when the record is gone; it never inserts.
	Update(ctx context.Context, record *models.SessionRecord) error

	// Delete removes a session record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes every record that expired before now
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuditRepository handles access audit events
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// ListByUser retrieves audit logs for a user, newest first
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error)
}

// Repositories bundles all repository implementations
type Repositories struct {
	Sessions  SessionRepository
	AuditLogs AuditRepository
}
