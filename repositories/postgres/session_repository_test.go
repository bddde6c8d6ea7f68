package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/policy-portal/models"
	"github.com/upb/policy-portal/repositories"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return Wrap(sqlDB, zap.NewNop()), mock
}

func TestSessionRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the stored record", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())

		now := time.Now().UTC().Truncate(time.Second)
		rows := sqlmock.NewRows([]string{"id", "data", "expires_at", "created_at", "updated_at"}).
			AddRow("sid-1", []byte(`{"token":"t"}`), now.Add(time.Hour), now, now)
		mock.ExpectQuery("SELECT id, data, expires_at, created_at, updated_at FROM portal_sessions").
			WithArgs("sid-1").
			WillReturnRows(rows)

		rec, err := repo.Get(ctx, "sid-1")
		require.NoError(t, err)
		assert.Equal(t, "sid-1", rec.ID)
		assert.JSONEq(t, `{"token":"t"}`, string(rec.Data))
		assert.Equal(t, now.Add(time.Hour), rec.ExpiresAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row maps to ErrNotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())

		mock.ExpectQuery("SELECT id, data").
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"id", "data", "expires_at", "created_at", "updated_at"}))

		_, err := repo.Get(ctx, "nope")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure is wrapped", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())

		mock.ExpectQuery("SELECT id, data").WillReturnError(errors.New("connection reset"))

		_, err := repo.Get(ctx, "sid")
		require.Error(t, err)
		assert.NotErrorIs(t, err, repositories.ErrNotFound)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestSessionRepository_Save(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db, zap.NewNop())

	rec := models.NewSessionRecord("sid-1", []byte(`{}`), time.Now().Add(time.Hour))
	mock.ExpectExec("INSERT INTO portal_sessions").
		WithArgs(rec.ID, rec.Data, rec.ExpiresAt, rec.CreatedAt, rec.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Save(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Update(t *testing.T) {
	ctx := context.Background()
	rec := models.NewSessionRecord("sid-1", []byte(`{"token":"t2"}`), time.Now().Add(time.Hour))

	t.Run("updates an existing row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())

		mock.ExpectExec("UPDATE portal_sessions SET data").
			WithArgs(rec.ID, rec.Data, rec.ExpiresAt, rec.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(ctx, rec))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deleted row is not recreated", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())

		mock.ExpectExec("UPDATE portal_sessions SET data").
			WithArgs(rec.ID, rec.Data, rec.ExpiresAt, rec.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Update(ctx, rec)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec failure is wrapped", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSessionRepository(db, zap.NewNop())

		mock.ExpectExec("UPDATE portal_sessions").WillReturnError(errors.New("connection reset"))

		err := repo.Update(ctx, rec)
		require.Error(t, err)
		assert.NotErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestSessionRepository_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db, zap.NewNop())

	mock.ExpectExec("DELETE FROM portal_sessions WHERE id").
		WithArgs("sid-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "sid-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db, zap.NewNop())

	now := time.Now()
	mock.ExpectExec("DELETE FROM portal_sessions WHERE expires_at").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
