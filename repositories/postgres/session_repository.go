package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upb/policy-portal/models"
	"github.com/upb/policy-portal/repositories"
	"go.uber.org/zap"
)

// SessionRepository implements the repositories.SessionRepository interface
type SessionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB, logger *zap.Logger) repositories.SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a session record by ID
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.SessionRecord, error) {
	query := `
		SELECT id, data, expires_at, created_at, updated_at
		FROM portal_sessions
		WHERE id = $1
	`

	rec := &models.SessionRecord{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.Data,
		&rec.ExpiresAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return rec, nil
}

// Save inserts or replaces a session record
func (r *SessionRepository) Save(ctx context.Context, record *models.SessionRecord) error {
	query := `
		INSERT INTO portal_sessions (id, data, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET data = EXCLUDED.data,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Data,
		record.ExpiresAt,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	r.logger.Debug("session saved", zap.Time("expires_at", record.ExpiresAt))
	return nil
}

// Update replaces the data and expiry of an existing session record
func (r *SessionRepository) Update(ctx context.Context, record *models.SessionRecord) error {
	query := `
		UPDATE portal_sessions
		SET data = $2, expires_at = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Data,
		record.ExpiresAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("session update: %w", repositories.ErrNotFound)
	}

	r.logger.Debug("session updated", zap.Time("expires_at", record.ExpiresAt))
	return nil
}

// Delete removes a session record
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM portal_sessions WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	r.logger.Debug("session deleted")
	return nil
}

// DeleteExpired removes every record that expired before now
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM portal_sessions WHERE expires_at <= $1`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		r.logger.Info("expired sessions purged", zap.Int64("count", rowsAffected))
	}
	return rowsAffected, nil
}
