package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDB_HealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer sqlDB.Close()

		mock.ExpectPing()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

		assert.NoError(t, Wrap(sqlDB, zap.NewNop()).HealthCheck(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ping failure", func(t *testing.T) {
		sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer sqlDB.Close()

		mock.ExpectPing().WillReturnError(errors.New("down"))

		err = Wrap(sqlDB, zap.NewNop()).HealthCheck(context.Background())
		assert.ErrorContains(t, err, "health check failed")
	})
}

func TestDB_InitSchema(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS portal_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryFactory_NewRepositories(t *testing.T) {
	db, _ := newMockDB(t)
	repos := NewRepositoryFactoryFromDB(db, zap.NewNop()).NewRepositories()

	assert.NotNil(t, repos.Sessions)
	assert.NotNil(t, repos.AuditLogs)
}
